package renderer

import (
	"io"

	"github.com/go-json-experiment/json"
	"github.com/pkg/errors"

	"github.com/df07/go-nerfw-renderer/pkg/config"
	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/embedding"
	"github.com/df07/go-nerfw-renderer/pkg/field"
)

// checkpointVersion is bumped whenever the checkpoint layout changes
const checkpointVersion = 1

// Checkpoint is the serialized form of a System
type Checkpoint struct {
	Version int           `json:"version"`
	Config  config.Config `json:"config"`
	Models  []field.State `json:"models"`
	Tables  []TableState  `json:"tables"`
}

// TableState is the serialized form of a code table
type TableState struct {
	Name string      `json:"name"`
	Rows [][]float64 `json:"rows"`
}

// Checkpoint snapshots the system parameters
func (s *System) Checkpoint() Checkpoint {
	ck := Checkpoint{Version: checkpointVersion, Config: s.Config}
	ck.Models = append(ck.Models, s.Coarse.State())
	if s.Fine != nil {
		ck.Models = append(ck.Models, s.Fine.State())
	}
	for _, c := range []embedding.Channel{s.Appearance, s.Outfit, s.Time} {
		if c.Enabled() {
			ck.Tables = append(ck.Tables, TableState{Name: c.Table().Name(), Rows: c.Table().Rows()})
		}
	}
	return ck
}

// SaveCheckpoint writes the system as JSON
func (s *System) SaveCheckpoint(w io.Writer) error {
	ck := s.Checkpoint()
	return errors.Wrap(json.MarshalWrite(w, &ck, json.DefaultOptionsV2()), "failed to write checkpoint")
}

// LoadCheckpoint reads a checkpoint and rebuilds the system it describes
func LoadCheckpoint(r io.Reader) (*System, error) {
	var ck Checkpoint
	if err := json.UnmarshalRead(r, &ck, json.DefaultOptionsV2(), json.RejectUnknownMembers(true)); err != nil {
		return nil, errors.Wrap(err, "failed to read checkpoint")
	}
	return FromCheckpoint(ck)
}

// FromCheckpoint builds a system from its config and replaces every parameter
// with the checkpointed values
func FromCheckpoint(ck Checkpoint) (*System, error) {
	if ck.Version != checkpointVersion {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "checkpoint version %d, want %d", ck.Version, checkpointVersion)
	}
	s, err := NewSystem(ck.Config)
	if err != nil {
		return nil, errors.Wrap(err, "checkpoint config")
	}

	models := []*field.NeRF{s.Coarse}
	if s.Fine != nil {
		models = append(models, s.Fine)
	}
	if len(ck.Models) != len(models) {
		return nil, errors.Wrapf(core.ErrChannelMismatch, "checkpoint has %d models, config needs %d", len(ck.Models), len(models))
	}
	for i, m := range models {
		if err := m.LoadState(ck.Models[i]); err != nil {
			return nil, err
		}
	}

	tables := map[string]*embedding.Channel{
		"appearance": &s.Appearance,
		"outfit":     &s.Outfit,
		"time":       &s.Time,
	}
	for _, ts := range ck.Tables {
		ch, ok := tables[ts.Name]
		if !ok || !ch.Enabled() {
			return nil, errors.Wrapf(core.ErrChannelMismatch, "checkpoint table %q is not enabled by its config", ts.Name)
		}
		want := ch.Table()
		table, err := embedding.NewTableFromRows(ts.Name, ts.Rows)
		if err != nil {
			return nil, err
		}
		if table.Vocab() != want.Vocab() || table.Dim() != want.Dim() {
			return nil, errors.Wrapf(core.ErrChannelMismatch, "table %q is %d×%d, config needs %d×%d",
				ts.Name, table.Vocab(), table.Dim(), want.Vocab(), want.Dim())
		}
		*ch = embedding.Enabled(table)
	}
	for name, ch := range tables {
		if ch.Enabled() && !hasTable(ck.Tables, name) {
			return nil, errors.Wrapf(core.ErrChannelMismatch, "checkpoint is missing table %q", name)
		}
	}

	// channels changed, rebuild the integrator over them
	return s, s.wire()
}

func hasTable(tables []TableState, name string) bool {
	for _, t := range tables {
		if t.Name == name {
			return true
		}
	}
	return false
}
