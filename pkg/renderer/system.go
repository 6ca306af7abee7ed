package renderer

import (
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"pgregory.net/rand"

	"github.com/df07/go-nerfw-renderer/pkg/config"
	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/embedding"
	"github.com/df07/go-nerfw-renderer/pkg/field"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
)

// System is the full set of encoders, code tables, models and the integrator
// described by a config
type System struct {
	Config     config.Config
	XYZ        *embedding.PosEmbedding
	Dir        *embedding.PosEmbedding
	Appearance embedding.Channel
	Outfit     embedding.Channel
	Time       embedding.Channel
	Coarse     *field.NeRF
	Fine       *field.NeRF // nil without a fine pass
	Integrator *integrator.Hierarchical
}

// NewSystem builds a freshly initialized system. Parameters are drawn from a
// generator seeded with cfg.Seed, so equal configs give equal weights.
func NewSystem(cfg config.Config) (*System, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	random := rand.New(cfg.Seed)

	s := &System{
		Config: cfg,
		XYZ:    embedding.NewPosEmbedding(cfg.NEmbXYZ, true),
		Dir:    embedding.NewPosEmbedding(cfg.NEmbDir, true),
	}
	var err error
	if cfg.EncodeA {
		if s.Appearance, err = newChannel("appearance", cfg.NVocab, cfg.NA, random); err != nil {
			return nil, err
		}
	}
	if cfg.EncodeOutfit {
		if s.Outfit, err = newChannel("outfit", cfg.NOutfit, cfg.NA, random); err != nil {
			return nil, err
		}
	}
	if cfg.EncodeT {
		if s.Time, err = newChannel("time", cfg.NVocab, cfg.NTau, random); err != nil {
			return nil, err
		}
	}

	if s.Coarse, err = field.New(s.modelOptions(field.Coarse), s.XYZ, s.Dir, random); err != nil {
		return nil, err
	}
	if cfg.HasFinePass() {
		if s.Fine, err = field.New(s.modelOptions(field.Fine), s.XYZ, s.Dir, random); err != nil {
			return nil, err
		}
	}
	return s, s.wire()
}

func newChannel(name string, vocab, dim int, random *rand.Rand) (embedding.Channel, error) {
	table, err := embedding.NewTable(name, vocab, dim, random)
	if err != nil {
		return embedding.Disabled(), err
	}
	return embedding.Enabled(table), nil
}

func (s *System) modelOptions(kind field.Kind) field.Options {
	opts := field.DefaultOptions(kind)
	opts.Depth = s.Config.Depth
	opts.Width = s.Config.Width
	opts.Skips = append([]int(nil), s.Config.Skips...)
	opts.InXYZ = s.XYZ.OutDim(3)
	opts.InDir = s.Dir.OutDim(3)
	opts.Codes = field.Inputs{Outfit: s.Outfit.Dim()}
	if kind == field.Fine {
		opts.Codes.Appearance = s.Appearance.Dim()
		opts.Codes.Time = s.Time.Dim()
		opts.Transient = s.Config.EncodeT
		opts.BetaMin = s.Config.BetaMin
	}
	return opts
}

// wire builds the integrator over the current models and channels
func (s *System) wire() error {
	h, err := s.newIntegrator(s.Config)
	if err != nil {
		return err
	}
	s.Integrator = h
	return nil
}

func (s *System) newIntegrator(cfg config.Config) (*integrator.Hierarchical, error) {
	models := integrator.Models{
		Coarse:     s.Coarse,
		Appearance: s.Appearance,
		Outfit:     s.Outfit,
		Time:       s.Time,
	}
	if s.Fine != nil {
		models.Fine = s.Fine
	}
	return integrator.NewHierarchical(samplingOptions(cfg), models)
}

func samplingOptions(cfg config.Config) integrator.Options {
	return integrator.Options{
		NumCoarse:       cfg.NSamples,
		NumFine:         cfg.NImportance,
		Perturb:         cfg.Perturb,
		UseDisparity:    cfg.UseDisp,
		WhiteBackground: cfg.WhiteBack,
		NoiseStd:        cfg.NoiseStd,
		BetaMin:         cfg.BetaMin,
		Seed:            cfg.Seed,
	}
}

// IntegratorFor returns an integrator over the system's models using the
// rendering settings of cfg, such as sample counts and perturbation. The system
// itself is left unchanged. Configs describing different models are rejected.
func (s *System) IntegratorFor(cfg config.Config) (*integrator.Hierarchical, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !sameModels(s.Config, cfg) {
		return nil, errors.Wrap(core.ErrChannelMismatch, "config describes different models")
	}
	return s.newIntegrator(cfg)
}

// Reconfigure makes cfg the system's config, see IntegratorFor
func (s *System) Reconfigure(cfg config.Config) error {
	h, err := s.IntegratorFor(cfg)
	if err != nil {
		return err
	}
	s.Config, s.Integrator = cfg, h
	return nil
}

func sameModels(a, b config.Config) bool {
	return a.NEmbXYZ == b.NEmbXYZ && a.NEmbDir == b.NEmbDir &&
		a.EncodeA == b.EncodeA && a.EncodeOutfit == b.EncodeOutfit && a.EncodeT == b.EncodeT &&
		a.NVocab == b.NVocab && a.NOutfit == b.NOutfit && a.NA == b.NA && a.NTau == b.NTau &&
		a.BetaMin == b.BetaMin && a.Depth == b.Depth && a.Width == b.Width &&
		slices.Equal(a.Skips, b.Skips) && a.HasFinePass() == b.HasFinePass()
}

// NewChunkRenderer returns a batch driver using the configured chunk size and workers
func (s *System) NewChunkRenderer(logger core.Logger) (*ChunkRenderer, error) {
	return NewChunkRenderer(s.Integrator, ChunkConfig{
		ChunkSize:  s.Config.Chunk,
		NumWorkers: s.Config.Workers,
	}, logger)
}

// NumParams returns the number of learned values across models and tables
func (s *System) NumParams() int {
	total := s.Coarse.NumParams()
	if s.Fine != nil {
		total += s.Fine.NumParams()
	}
	for _, c := range []embedding.Channel{s.Appearance, s.Outfit, s.Time} {
		if c.Enabled() {
			total += c.Table().Vocab() * c.Dim()
		}
	}
	return total
}
