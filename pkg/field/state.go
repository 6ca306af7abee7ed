package field

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// LayerState is the serializable form of a Linear layer
type LayerState struct {
	Name    string    `json:"name"`
	In      int       `json:"in"`
	Out     int       `json:"out"`
	Weights []float64 `json:"weights"` // row-major in × out
	Bias    []float64 `json:"bias"`
}

// State is the serializable form of a model's parameters
type State struct {
	Kind   string       `json:"kind"`
	Layers []LayerState `json:"layers"`
}

// State snapshots the parameters
func (n *NeRF) State() State {
	s := State{Kind: n.opts.Kind.String()}
	for _, l := range n.Layers() {
		s.Layers = append(s.Layers, LayerState{
			Name:    l.Name,
			In:      l.In(),
			Out:     l.Out(),
			Weights: append([]float64(nil), l.W.RawMatrix().Data...),
			Bias:    append([]float64(nil), l.B...),
		})
	}
	return s
}

// LoadState replaces the parameters. The state must match the model layer for layer.
func (n *NeRF) LoadState(s State) error {
	if s.Kind != n.opts.Kind.String() {
		return errors.Wrapf(core.ErrChannelMismatch, "state is for the %s model, not %s", s.Kind, n.opts.Kind)
	}
	layers := n.Layers()
	if len(s.Layers) != len(layers) {
		return errors.Wrapf(core.ErrChannelMismatch, "%s: state has %d layers, model has %d", s.Kind, len(s.Layers), len(layers))
	}
	for i, l := range layers {
		ls := s.Layers[i]
		if ls.Name != l.Name || ls.In != l.In() || ls.Out != l.Out() ||
			len(ls.Weights) != ls.In*ls.Out || len(ls.Bias) != ls.Out {
			return errors.Wrapf(core.ErrChannelMismatch, "%s: layer %q (%d×%d) does not match %q (%d×%d)",
				s.Kind, ls.Name, ls.In, ls.Out, l.Name, l.In(), l.Out())
		}
	}
	for i, l := range layers {
		ls := s.Layers[i]
		l.W = mat.NewDense(ls.In, ls.Out, append([]float64(nil), ls.Weights...))
		l.B = append([]float64(nil), ls.Bias...)
	}
	return nil
}
