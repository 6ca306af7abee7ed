// Package config holds the rendering hyperparameters and their YAML encoding.
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// Config mirrors the hyperparameters of a trained model plus the rendering knobs
type Config struct {
	// positional encoding frequencies
	NEmbXYZ int `yaml:"n_emb_xyz" json:"n_emb_xyz"`
	NEmbDir int `yaml:"n_emb_dir" json:"n_emb_dir"`

	// conditioning channels
	EncodeA      bool `yaml:"encode_a" json:"encode_a"`
	EncodeOutfit bool `yaml:"encode_outfit" json:"encode_outfit"`
	EncodeT      bool `yaml:"encode_t" json:"encode_t"`
	NVocab       int  `yaml:"n_vocab" json:"n_vocab"`   // frame vocabulary, shared by appearance and time codes
	NOutfit      int  `yaml:"n_outfit" json:"n_outfit"` // outfit vocabulary
	NA           int  `yaml:"n_a" json:"n_a"`           // appearance and outfit code width
	NTau         int  `yaml:"n_tau" json:"n_tau"`       // time code width

	BetaMin float64 `yaml:"beta_min" json:"beta_min"`

	// MLP shape
	Depth int   `yaml:"depth" json:"depth"`
	Width int   `yaml:"width" json:"width"`
	Skips []int `yaml:"skips" json:"skips"`

	// sampling
	NSamples    int     `yaml:"n_samples" json:"n_samples"`
	NImportance int     `yaml:"n_importance" json:"n_importance"`
	Perturb     bool    `yaml:"perturb" json:"perturb"`
	NoiseStd    float64 `yaml:"noise_std" json:"noise_std"`
	UseDisp     bool    `yaml:"use_disp" json:"use_disp"`
	WhiteBack   bool    `yaml:"white_back" json:"white_back"`

	// batch driver
	Chunk   int    `yaml:"chunk" json:"chunk"`
	Workers int    `yaml:"workers" json:"workers"`
	Seed    uint64 `yaml:"seed" json:"seed"`
}

// Default returns the hyperparameters of the reference in-the-wild setup
func Default() Config {
	return Config{
		NEmbXYZ:      10,
		NEmbDir:      4,
		EncodeA:      true,
		EncodeOutfit: true,
		EncodeT:      false,
		NVocab:       100,
		NOutfit:      2,
		NA:           48,
		NTau:         16,
		BetaMin:      0.1,
		Depth:        8,
		Width:        256,
		Skips:        []int{4},
		NSamples:     64,
		NImportance:  64,
		Perturb:      false,
		NoiseStd:     1,
		UseDisp:      false,
		WhiteBack:    false,
		Chunk:        32 * 1024,
		Workers:      1,
		Seed:         0,
	}
}

// Load reads a YAML file on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read config")
	}
	return Parse(data)
}

// Parse decodes YAML on top of Default and validates the result
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, errors.Wrapf(core.ErrInvalidConfig, "parse config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes the config as YAML
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// HasFinePass reports whether importance sampling and the fine model are enabled
func (c Config) HasFinePass() bool {
	return c.NImportance > 0
}

// Validate rejects inconsistent combinations before any model is built
func (c Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return errors.Wrapf(core.ErrInvalidConfig, format, args...)
	}
	switch {
	case c.NEmbXYZ < 0 || c.NEmbDir < 0:
		return invalid("encoding frequencies must be non-negative, got xyz=%d dir=%d", c.NEmbXYZ, c.NEmbDir)
	case c.NSamples < 1:
		return invalid("n_samples %d must be positive", c.NSamples)
	case c.NImportance < 0:
		return invalid("n_importance %d must be non-negative", c.NImportance)
	case c.HasFinePass() && c.NSamples < 3:
		return invalid("importance sampling needs n_samples >= 3, got %d", c.NSamples)
	case c.Chunk < 1:
		return invalid("chunk %d must be positive", c.Chunk)
	case c.Workers < 0:
		return invalid("workers %d must be non-negative", c.Workers)
	case c.NoiseStd < 0:
		return invalid("noise_std %g must be non-negative", c.NoiseStd)
	case c.Depth < 1 || c.Width < 2:
		return invalid("MLP depth %d and width %d too small", c.Depth, c.Width)
	}
	for _, s := range c.Skips {
		if s <= 0 || s >= c.Depth {
			return invalid("skip layer %d outside (0, %d)", s, c.Depth)
		}
	}

	if c.EncodeA && !c.HasFinePass() {
		return invalid("encode_a conditions the fine model, which needs n_importance > 0")
	}
	if c.EncodeT && !c.HasFinePass() {
		return invalid("encode_t requires the fine model (n_importance > 0)")
	}
	if (c.EncodeA || c.EncodeT) && c.NVocab < 1 {
		return invalid("n_vocab %d must be positive", c.NVocab)
	}
	if c.EncodeOutfit && c.NOutfit < 1 {
		return invalid("n_outfit %d must be positive", c.NOutfit)
	}
	if (c.EncodeA || c.EncodeOutfit) && c.NA < 1 {
		return invalid("n_a %d must be positive", c.NA)
	}
	if c.EncodeT && c.NTau < 1 {
		return invalid("n_tau %d must be positive", c.NTau)
	}
	if c.EncodeT && c.BetaMin <= 0 {
		return invalid("beta_min %g must be positive", c.BetaMin)
	}
	return nil
}
