package server

import (
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/df07/go-nerfw-renderer/pkg/config"
	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
	"github.com/df07/go-nerfw-renderer/pkg/renderer"
	"github.com/df07/go-nerfw-renderer/pkg/scene"
)

// Server handles web requests for novel view rendering
type Server struct {
	port     int
	sceneDir string
	system   *renderer.System // trained model, nil when only analytic scenes are served
	logger   core.Logger
	mux      *http.ServeMux
}

// NewServer creates a new web server. system may be nil.
func NewServer(port int, sceneDir string, system *renderer.System, logger core.Logger) *Server {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	s := &Server{port: port, sceneDir: sceneDir, system: system, logger: logger, mux: http.NewServeMux()}

	// Serve static files
	s.mux.Handle("/", http.FileServer(http.Dir("static/")))

	// API endpoints
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/scenes", s.handleScenes)
	s.mux.HandleFunc("/api/render", s.handleRender)
	s.mux.HandleFunc("/api/image", s.handleImage)
	s.mux.HandleFunc("/api/inspect", s.handleInspect)
	return s
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the web server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Infof("Starting web server on http://localhost%s", addr)
	return http.ListenAndServe(addr, s.mux)
}

// RenderRequest represents a render request from the client
type RenderRequest struct {
	Scene      string  `json:"scene"`      // Scene id (e.g., "landmark" or "file:old-town")
	Width      int     `json:"width"`      // Image width
	Height     int     `json:"height"`     // Image height
	Azimuth    float64 `json:"azimuth"`    // Degrees the camera orbits from the scene's camera
	Samples    int     `json:"samples"`    // Coarse samples per ray
	Importance int     `json:"importance"` // Importance samples per ray, 0 for coarse only
	Perturb    bool    `json:"perturb"`    // Jitter samples
	Output     string  `json:"output"`     // "rgb" or "depth"

	Model      bool    `json:"model"`      // Render the trained model instead of the analytic scene
	Frame      int     `json:"frame"`      // Model frame id
	OutfitID   int     `json:"outfitId"`   // Model outfit id
	Appearance float64 `json:"appearance"` // Scene brightness code
	Outfit     float64 `json:"outfit"`     // Scene outfit blend
	Transient  bool    `json:"transient"`  // Show scene transient objects
	FitBounds  bool    `json:"fit"`        // Clip rays to the scene's bounding box
}

// RenderingPipeline contains the configured scene view and its renderer
type RenderingPipeline struct {
	Scene      *scene.Scene
	Camera     core.CameraConfig
	Integrator integrator.Integrator
	Renderer   *renderer.ChunkRenderer
	Batch      *core.RayBatch
}

// handleHealth provides a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "model": s.system != nil})
}

// handleScenes lists built-in and file scenes
func (s *Server) handleScenes(w http.ResponseWriter, r *http.Request) {
	scenes, err := scene.ListAllScenes(s.sceneDir, s.logger)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, scenes)
}

// parseCommonSceneParams parses the parameters that place the camera
func (s *Server) parseCommonSceneParams(r *http.Request, req *RenderRequest) error {
	values := r.URL.Query()
	req.Scene = values.Get("scene")
	if req.Scene == "" {
		req.Scene = "landmark" // Default scene
	}

	var err error
	if req.Width, err = parseIntParam(values, "width", 0, 0, 2000); err != nil {
		return err
	}
	if req.Height, err = parseIntParam(values, "height", 0, 0, 2000); err != nil {
		return err
	}
	if req.Azimuth, err = parseFloatParam(values, "azimuth", 0, -360, 360); err != nil {
		return err
	}
	if req.Samples, err = parseIntParam(values, "samples", 64, 1, 1024); err != nil {
		return err
	}
	if req.Importance, err = parseIntParam(values, "importance", 64, 0, 1024); err != nil {
		return err
	}
	if req.Perturb, err = parseBoolParam(values, "perturb"); err != nil {
		return err
	}
	if req.Model, err = parseBoolParam(values, "model"); err != nil {
		return err
	}
	if req.Model && s.system == nil {
		return errors.New("no model loaded")
	}
	if req.Frame, err = parseIntParam(values, "frame", 0, 0, 1<<20); err != nil {
		return err
	}
	if req.OutfitID, err = parseIntParam(values, "outfitId", 0, 0, 1<<20); err != nil {
		return err
	}
	if req.Appearance, err = parseFloatParam(values, "appearance", 0, -10, 10); err != nil {
		return err
	}
	if req.Outfit, err = parseFloatParam(values, "outfit", 0, 0, 1); err != nil {
		return err
	}
	if req.Transient, err = parseBoolParam(values, "transient"); err != nil {
		return err
	}
	if req.FitBounds, err = parseBoolParam(values, "fit"); err != nil {
		return err
	}
	return nil
}

// parseIntParam parses an integer parameter from URL query with validation
func parseIntParam(values url.Values, key string, defaultValue, min, max int) (int, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return 0, errors.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, errors.Errorf("%s must be between %d and %d, got: %d", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

// parseFloatParam parses a float parameter from URL query with validation
func parseFloatParam(values url.Values, key string, defaultValue, min, max float64) (float64, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, errors.Errorf("invalid %s: %s", key, value)
		}
		if parsed < min || parsed > max {
			return 0, errors.Errorf("%s must be between %f and %f, got: %f", key, min, max, parsed)
		}
		return parsed, nil
	}
	return defaultValue, nil
}

func parseBoolParam(values url.Values, key string) (bool, error) {
	if value := values.Get(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return false, errors.Errorf("invalid %s: %s", key, value)
		}
		return parsed, nil
	}
	return false, nil
}

// createScene creates a built-in scene or loads a scene file from the scenes directory
func (s *Server) createScene(sceneID string) (*scene.Scene, error) {
	if name, ok := strings.CutPrefix(sceneID, "file:"); ok {
		if name != filepath.Base(name) {
			return nil, errors.Errorf("invalid scene file name %q", name)
		}
		return scene.LoadSceneFile(filepath.Join(s.sceneDir, name+".yaml"))
	}
	return scene.NewScene(sceneID)
}

// setupRenderingPipeline creates the scene view, integrator and ray batch of a request
func (s *Server) setupRenderingPipeline(req *RenderRequest, logger core.Logger) (*RenderingPipeline, error) {
	sceneObj, err := s.createScene(req.Scene)
	if err != nil {
		return nil, err
	}
	camera := scene.MergeCameraConfig(sceneObj.CameraConfig, core.CameraConfig{Width: req.Width, Height: req.Height})
	if req.Azimuth != 0 {
		camera = camera.Orbit(req.Azimuth)
	}

	p := &RenderingPipeline{Scene: sceneObj, Camera: camera}
	rays := core.NewCamera(camera).GetRays()
	if req.FitBounds {
		rays = core.FitRays(rays, sceneObj.Bounds())
	}
	var cfg config.Config
	if req.Model {
		cfg = s.system.Config
		cfg.NSamples, cfg.NImportance, cfg.Perturb = req.Samples, req.Importance, req.Perturb
		if p.Integrator, err = s.system.IntegratorFor(cfg); err != nil {
			return nil, err
		}
		p.Batch = renderer.ViewBatch(rays, req.Frame, req.OutfitID)
	} else {
		cfg = config.Default()
		cfg.NSamples, cfg.NImportance, cfg.Perturb = req.Samples, req.Importance, req.Perturb
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		p.Integrator, err = renderer.NewSceneIntegrator(sceneObj, cfg, renderer.SceneView{
			Appearance: req.Appearance,
			Outfit:     req.Outfit,
			Transient:  req.Transient,
		})
		if err != nil {
			return nil, err
		}
		p.Batch = renderer.ViewBatch(rays, 0, 0)
	}

	p.Renderer, err = renderer.NewChunkRenderer(p.Integrator, renderer.ChunkConfig{
		ChunkSize:  DefaultChunkSize,
		NumWorkers: 0, // Auto-detect
	}, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// newRenderID returns a short id tagging the logs of one request
func newRenderID() string {
	return "render-" + uuid.NewString()[:8]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.MarshalWrite(w, v)
}
