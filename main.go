package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"golang.org/x/sync/errgroup"

	"github.com/df07/go-nerfw-renderer/pkg/config"
	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
	"github.com/df07/go-nerfw-renderer/pkg/loaders"
	"github.com/df07/go-nerfw-renderer/pkg/loss"
	"github.com/df07/go-nerfw-renderer/pkg/metrics"
	"github.com/df07/go-nerfw-renderer/pkg/renderer"
	"github.com/df07/go-nerfw-renderer/pkg/scene"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "nerfw"
	app.Usage = "Render in-the-wild radiance fields"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "Enable debug logging",
		},
	}
	app.Commands = []cli.Command{
		renderCommand(),
		raysCommand(),
		evalCommand(),
		initCommand(),
	}
	return app
}

// configFlags are shared by every command that renders
var configFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config",
		Usage: "YAML config file (defaults are used for missing keys)",
	},
	cli.IntFlag{
		Name:  "samples",
		Usage: "Coarse samples per ray",
	},
	cli.IntFlag{
		Name:  "importance",
		Usage: "Importance samples per ray, 0 disables the fine pass",
	},
	cli.IntFlag{
		Name:  "chunk",
		Usage: "Rays per chunk",
	},
	cli.IntFlag{
		Name:  "workers",
		Usage: "Parallel chunk workers, 0 uses every CPU",
	},
	cli.BoolFlag{
		Name:  "perturb",
		Usage: "Jitter samples inside their bins",
	},
	cli.BoolFlag{
		Name:  "white-back",
		Usage: "Composite over a white background",
	},
	cli.Uint64Flag{
		Name:  "seed",
		Usage: "Seed for weights and sample jitter",
	},
}

var viewFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "scene",
		Usage: "Built-in scene id or YAML scene file",
		Value: "landmark",
	},
	cli.StringFlag{
		Name:  "scenes-dir",
		Usage: "Directory searched for scene files by name",
		Value: "scenes",
	},
	cli.StringFlag{
		Name:  "checkpoint",
		Usage: "Render a checkpointed model instead of the analytic scene",
	},
	cli.IntFlag{
		Name:  "width",
		Usage: "Image width (scene default when unset)",
	},
	cli.IntFlag{
		Name:  "height",
		Usage: "Image height (scene default when unset)",
	},
	cli.IntFlag{
		Name:  "frame",
		Usage: "Frame id selecting appearance and time codes of a checkpoint",
	},
	cli.IntFlag{
		Name:  "outfit",
		Usage: "Outfit id of a checkpoint",
	},
	cli.Float64Flag{
		Name:  "appearance-code",
		Usage: "Brightness code for analytic scenes",
	},
	cli.Float64Flag{
		Name:  "outfit-code",
		Usage: "Outfit blend for analytic scenes, 0 base colors to 1 alternates",
	},
	cli.BoolFlag{
		Name:  "transient",
		Usage: "Show transient objects of analytic scenes",
	},
	cli.BoolFlag{
		Name:  "fit-bounds",
		Usage: "Clip each ray's near/far to the box around the scene's blobs",
	},
}

func renderCommand() cli.Command {
	return cli.Command{
		Name:  "render",
		Usage: "Render RGB and depth images from orbiting cameras",
		Flags: flags(configFlags, viewFlags, []cli.Flag{
			cli.IntFlag{
				Name:  "views",
				Usage: "Number of cameras spaced evenly around the scene",
				Value: 1,
			},
			cli.IntFlag{
				Name:  "parallel",
				Usage: "Views rendered at the same time",
				Value: 1,
			},
			cli.StringFlag{
				Name:  "output",
				Usage: "Output directory (default output/<scene>)",
			},
		}),
		Action: runRender,
	}
}

func raysCommand() cli.Command {
	return cli.Command{
		Name:  "rays",
		Usage: "Write the camera rays of a view as a batch record with rendered target colors",
		Flags: flags(configFlags, viewFlags, []cli.Flag{
			cli.StringFlag{
				Name:  "output",
				Usage: "Batch record file",
				Value: "batch.json",
			},
		}),
		Action: runRays,
	}
}

func evalCommand() cli.Command {
	return cli.Command{
		Name:  "eval",
		Usage: "Render a batch record with a checkpoint and report loss and PSNR",
		Flags: flags(configFlags, []cli.Flag{
			cli.StringFlag{
				Name:  "checkpoint",
				Usage: "Model checkpoint",
			},
			cli.StringFlag{
				Name:  "batch",
				Usage: "Batch record with target colors",
			},
			cli.Float64Flag{
				Name:  "lambda-u",
				Usage: "Weight of the transient density penalty",
				Value: 0.01,
			},
			cli.StringFlag{
				Name:  "image",
				Usage: "Write target | prediction | depth to this PNG (image batches only)",
			},
		}),
		Action: runEval,
	}
}

func initCommand() cli.Command {
	return cli.Command{
		Name:  "init",
		Usage: "Write a freshly initialized checkpoint",
		Flags: flags(configFlags, []cli.Flag{
			cli.StringFlag{
				Name:  "output",
				Usage: "Checkpoint file",
				Value: "checkpoint.json",
			},
		}),
		Action: runInit,
	}
}

func flags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// newLogger tags every line with a short job id so concurrent runs can be told apart
func newLogger(c *cli.Context) *core.DefaultLogger {
	return core.NewDefaultLogger(os.Stderr, c.GlobalBool("v")).With("job", uuid.NewString()[:8])
}

// loadConfig reads --config and applies command line overrides
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}
	if c.IsSet("samples") {
		cfg.NSamples = c.Int("samples")
	}
	if c.IsSet("importance") {
		cfg.NImportance = c.Int("importance")
		if cfg.NImportance == 0 {
			cfg.EncodeA = false
			cfg.EncodeT = false
		}
	}
	if c.IsSet("chunk") {
		cfg.Chunk = c.Int("chunk")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	if c.IsSet("perturb") {
		cfg.Perturb = c.Bool("perturb")
	}
	if c.IsSet("white-back") {
		cfg.WhiteBack = c.Bool("white-back")
	}
	if c.IsSet("seed") {
		cfg.Seed = c.Uint64("seed")
	}
	return cfg, cfg.Validate()
}

// createScene resolves a built-in scene id, a scene file path or the name of a
// file in sceneDir
func createScene(sceneType, sceneDir string) (*scene.Scene, error) {
	if sceneType == "" {
		return nil, errors.New("no scene given")
	}
	if s, err := scene.NewScene(sceneType); err == nil {
		return s, nil
	}
	for _, path := range sceneFileCandidates(sceneType, sceneDir) {
		if _, err := os.Stat(path); err == nil {
			return scene.LoadSceneFile(path)
		}
	}
	return nil, errors.Errorf("unknown scene %q", sceneType)
}

func sceneFileCandidates(sceneType, sceneDir string) []string {
	name := strings.TrimPrefix(sceneType, "file:")
	if ext := filepath.Ext(name); ext == ".yaml" || ext == ".yml" {
		return []string{name, filepath.Join(sceneDir, filepath.Base(name))}
	}
	return []string{filepath.Join(sceneDir, name+".yaml"), filepath.Join(sceneDir, name+".yml")}
}

// createOutputDir names the output directory after the scene
func createOutputDir(sceneType string) string {
	base := strings.TrimPrefix(sceneType, "file:")
	base = strings.TrimSuffix(filepath.Base(base), filepath.Ext(base))
	if base == "" || base == "." {
		base = "render"
	}
	return filepath.Join("output", base)
}

// view is one configured source of radiance plus the scene that places the camera
type view struct {
	scene      *scene.Scene
	integ      integrator.Integrator
	cfg        config.Config
	frame      int
	outfit     int
	checkpoint bool
	fitBounds  bool
}

func setupView(c *cli.Context, logger core.Logger) (*view, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	s, err := createScene(c.String("scene"), c.String("scenes-dir"))
	if err != nil {
		return nil, err
	}
	s.CameraConfig = scene.MergeCameraConfig(s.CameraConfig, core.CameraConfig{
		Width:  c.Int("width"),
		Height: c.Int("height"),
	})

	v := &view{scene: s, cfg: cfg, fitBounds: c.Bool("fit-bounds")}
	if path := c.String("checkpoint"); path != "" {
		sys, err := loadSystem(path, c, cfg)
		if err != nil {
			return nil, err
		}
		logger.Infof("loaded %s: %d parameters", path, sys.NumParams())
		v.integ, v.cfg = sys.Integrator, sys.Config
		v.frame, v.outfit, v.checkpoint = c.Int("frame"), c.Int("outfit"), true
		return v, nil
	}

	v.integ, err = renderer.NewSceneIntegrator(s, cfg, renderer.SceneView{
		Appearance: c.Float64("appearance-code"),
		Outfit:     c.Float64("outfit-code"),
		Transient:  c.Bool("transient"),
	})
	if err != nil {
		return nil, err
	}
	logger.Infof("rendering scene %q (%s)", s.Info.ID, s.Info.DisplayName)
	return v, nil
}

// loadSystem reads a checkpoint and applies the sampling overrides of the command line
func loadSystem(path string, c *cli.Context, overrides config.Config) (*renderer.System, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open checkpoint")
	}
	defer f.Close()
	sys, err := renderer.LoadCheckpoint(f)
	if err != nil {
		return nil, errors.Wrapf(err, "checkpoint %s", path)
	}

	// model settings come from the checkpoint, only sampling can be overridden
	cfg := sys.Config
	cfg.Chunk, cfg.Workers = overrides.Chunk, overrides.Workers
	if c.IsSet("samples") {
		cfg.NSamples = overrides.NSamples
	}
	if c.IsSet("importance") {
		cfg.NImportance = overrides.NImportance
	}
	if c.IsSet("perturb") {
		cfg.Perturb = overrides.Perturb
	}
	if c.IsSet("white-back") {
		cfg.WhiteBack = overrides.WhiteBack
	}
	if c.IsSet("seed") {
		cfg.Seed = overrides.Seed
	}
	if err := sys.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return sys, nil
}

func runRender(c *cli.Context) error {
	logger := newLogger(c)
	v, err := setupView(c, logger)
	if err != nil {
		return err
	}
	outputDir := c.String("output")
	if outputDir == "" {
		outputDir = createOutputDir(c.String("scene"))
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}

	cameras := orbitCameras(v.scene.CameraConfig, c.Int("views"))
	chunked, err := renderer.NewChunkRenderer(v.integ, renderer.ChunkConfig{
		ChunkSize:  v.cfg.Chunk,
		NumWorkers: v.cfg.Workers,
	}, logger)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(c.Int("parallel"), 1))
	for i, cam := range cameras {
		i, cam := i, cam
		g.Go(func() error {
			return renderView(ctx, chunked, v, cam, filepath.Join(outputDir, fmt.Sprintf("%03d", i)), logger)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Infof("wrote %d views to %s", len(cameras), outputDir)
	return nil
}

// orbitCameras spaces n cameras evenly on the circle through the base camera
func orbitCameras(base core.CameraConfig, n int) []core.CameraConfig {
	if n <= 1 {
		return []core.CameraConfig{base}
	}
	cameras := make([]core.CameraConfig, n)
	for i := range cameras {
		cameras[i] = base.Orbit(360 * float64(i) / float64(n))
	}
	return cameras
}

// renderView renders one camera and writes <prefix>_rgb.png and <prefix>_depth.png
func renderView(ctx context.Context, r *renderer.ChunkRenderer, v *view, cam core.CameraConfig, prefix string, logger core.Logger) error {
	result, stats, err := r.Render(ctx, v.batch(core.NewCamera(cam).GetRays()))
	if err != nil {
		return errors.Wrapf(err, "view %s", filepath.Base(prefix))
	}
	kind := result.PrimaryKind()
	rgb, err := renderer.ImageFromResult(result, "rgb_"+kind, cam.Width, cam.Height)
	if err != nil {
		return err
	}
	depth, err := renderer.DepthImage(result, "depth_"+kind, cam.Width, cam.Height)
	if err != nil {
		return err
	}
	if err := savePNG(prefix+"_rgb.png", rgb); err != nil {
		return err
	}
	if err := savePNG(prefix+"_depth.png", depth); err != nil {
		return err
	}
	logger.Infof("view %s: %d rays in %v", filepath.Base(prefix), stats.TotalRays, stats.Duration)
	return nil
}

func (v *view) batch(rays []core.Ray) *core.RayBatch {
	if v.fitBounds {
		rays = core.FitRays(rays, v.scene.Bounds())
	}
	if v.checkpoint {
		return renderer.ViewBatch(rays, v.frame, v.outfit)
	}
	return renderer.ViewBatch(rays, 0, 0)
}

func runRays(c *cli.Context) error {
	logger := newLogger(c)
	v, err := setupView(c, logger)
	if err != nil {
		return err
	}
	cam := v.scene.CameraConfig
	batch := v.batch(core.NewCamera(cam).GetRays())

	chunked, err := renderer.NewChunkRenderer(v.integ, renderer.ChunkConfig{ChunkSize: v.cfg.Chunk, NumWorkers: v.cfg.Workers}, logger)
	if err != nil {
		return err
	}
	result, _, err := chunked.Render(context.Background(), batch)
	if err != nil {
		return err
	}
	batch.RGBs = result.Colors("rgb_" + result.PrimaryKind())

	f, err := os.Create(c.String("output"))
	if err != nil {
		return errors.Wrap(err, "failed to create batch file")
	}
	defer f.Close()
	if err := loaders.EncodeBatch(f, batch, cam.Width, cam.Height); err != nil {
		return err
	}
	logger.Infof("wrote %d rays to %s", batch.Len(), c.String("output"))
	return nil
}

func runEval(c *cli.Context) error {
	logger := newLogger(c)
	if c.String("checkpoint") == "" || c.String("batch") == "" {
		return errors.New("eval needs --checkpoint and --batch")
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sys, err := loadSystem(c.String("checkpoint"), c, cfg)
	if err != nil {
		return err
	}
	record, err := loaders.LoadBatch(c.String("batch"))
	if err != nil {
		return err
	}
	if record.Batch.RGBs == nil {
		return errors.Errorf("batch %s has no target colors", c.String("batch"))
	}

	chunked, err := sys.NewChunkRenderer(logger)
	if err != nil {
		return err
	}
	result, _, err := chunked.Render(context.Background(), record.Batch)
	if err != nil {
		return err
	}

	nerfw := loss.NeRFW{Coef: 1, LambdaU: c.Float64("lambda-u")}
	terms, err := nerfw.Compute(result, record.Batch.RGBs)
	if err != nil {
		return err
	}
	kind := result.PrimaryKind()
	psnr, err := metrics.PSNR(result.Colors("rgb_"+kind), record.Batch.RGBs)
	if err != nil {
		return err
	}
	for name, value := range terms.Named() {
		logger.Infof("%s = %.6f", name, value)
	}
	logger.Infof("loss = %.6f, psnr(%s) = %.2f dB", terms.Total(), kind, psnr)

	if path := c.String("image"); path != "" {
		if record.Width == 0 {
			return errors.New("batch has no img_wh, cannot write an image")
		}
		return saveComparison(path, result, record)
	}
	return nil
}

// saveComparison writes target | prediction | depth side by side
func saveComparison(path string, result *integrator.Result, record *loaders.BatchRecord) error {
	w, h := record.Width, record.Height
	kind := result.PrimaryKind()
	target, err := renderer.TargetImage(record.Batch.RGBs, w, h)
	if err != nil {
		return err
	}
	pred, err := renderer.ImageFromResult(result, "rgb_"+kind, w, h)
	if err != nil {
		return err
	}
	depth, err := renderer.DepthImage(result, "depth_"+kind, w, h)
	if err != nil {
		return err
	}
	out := renderer.SideBySide(target, pred, depth)
	if w < 256 {
		out = renderer.Upscale(out, max(256/w, 1))
	}
	return savePNG(path, out)
}

func runInit(c *cli.Context) error {
	logger := newLogger(c)
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sys, err := renderer.NewSystem(cfg)
	if err != nil {
		return err
	}
	f, err := os.Create(c.String("output"))
	if err != nil {
		return errors.Wrap(err, "failed to create checkpoint file")
	}
	defer f.Close()
	if err := sys.SaveCheckpoint(f); err != nil {
		return err
	}
	logger.Infof("wrote %s: %d parameters", c.String("output"), sys.NumParams())
	return nil
}

func savePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create image file")
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return errors.Wrapf(err, "failed to save %s", path)
	}
	return nil
}
