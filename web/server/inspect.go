package server

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/df07/go-nerfw-renderer/pkg/integrator"
)

// InspectSample is one point along the inspected ray
type InspectSample struct {
	T      float64 `json:"t"`
	Weight float64 `json:"weight"`
}

// InspectResponse represents the JSON response for pixel inspection
type InspectResponse struct {
	Pass     string          `json:"pass"` // "fine" or "coarse"
	Ray      int             `json:"ray"`  // Index of the pixel's ray in the image batch
	Origin   [3]float64      `json:"origin"`
	Dir      [3]float64      `json:"direction"`
	RGB      [3]float64      `json:"rgb"`
	Depth    float64         `json:"depth"`
	Opacity  float64         `json:"opacity"`
	Beta     *float64        `json:"beta,omitempty"`          // Transient uncertainty, when modelled
	Static   *[3]float64     `json:"staticRgb,omitempty"`     // Static-only color, when a fine pass ran
	Samples  []InspectSample `json:"samples"`                 // Compositing weights along the ray
	Peak     InspectSample   `json:"peak"`                    // Heaviest sample
	Coarse   [3]float64      `json:"coarseRgb"`               // Coarse pass color
	Accepted bool            `json:"accepted"`                // Opacity above one half
}

// inspectPixel renders the single ray through a pixel
func inspectPixel(p *RenderingPipeline, pixelX, pixelY int) (*InspectResponse, error) {
	width, height := p.Camera.Width, p.Camera.Height
	if pixelX < 0 || pixelX >= width || pixelY < 0 || pixelY >= height {
		return nil, errors.Errorf("pixel (%d, %d) outside %dx%d image", pixelX, pixelY, width, height)
	}

	i := pixelY*width + pixelX
	result, err := p.Integrator.RenderRays(p.Batch.Slice(i, i+1), i)
	if err != nil {
		return nil, err
	}

	kind := result.PrimaryKind()
	ray := p.Batch.Rays[i]
	resp := &InspectResponse{
		Pass:    kind,
		Ray:     i,
		Origin:  ray.Origin,
		Dir:     ray.Direction,
		RGB:     result.Vec3("rgb_"+kind, 0),
		Depth:   result.Scalar("depth_" + kind)[0],
		Opacity: result.Scalar("opacity_" + kind)[0],
		Coarse:  result.Vec3(integrator.KeyRGBCoarse, 0),
	}
	resp.Accepted = resp.Opacity > 0.5
	if result.Has(integrator.KeyBeta) {
		beta := result.Scalar(integrator.KeyBeta)[0]
		resp.Beta = &beta
	}
	if result.Has(integrator.KeyRGBFineStatic) {
		static := [3]float64(result.Vec3(integrator.KeyRGBFineStatic, 0))
		resp.Static = &static
	}

	t, _ := result.Get("z_vals_" + kind)
	w, _ := result.Get("weights_" + kind)
	for k, z := range t.RawRowView(0) {
		sample := InspectSample{T: z, Weight: w.At(0, k)}
		resp.Samples = append(resp.Samples, sample)
		if sample.Weight > resp.Peak.Weight {
			resp.Peak = sample
		}
	}
	return resp, nil
}

// handleInspect reports what a single pixel's ray sees
func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	req := &RenderRequest{}
	if err := s.parseCommonSceneParams(r, req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	values := r.URL.Query()
	pixelX, err := parseIntParam(values, "x", -1, 0, 10000)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	pixelY, err := parseIntParam(values, "y", -1, 0, 10000)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if pixelX < 0 || pixelY < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "x and y are required"})
		return
	}

	logger := NewWebLogger(newRenderID(), nil, s.logger)
	pipeline, err := s.setupRenderingPipeline(req, logger)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	resp, err := inspectPixel(pipeline, pixelX, pixelY)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
