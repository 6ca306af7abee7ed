package field

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/mat"
	"pgregory.net/rand"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/embedding"
)

// Kind selects the coarse or fine variant of the model
type Kind int

const (
	Coarse Kind = iota
	Fine
)

func (k Kind) String() string {
	if k == Fine {
		return "fine"
	}
	return "coarse"
}

// transientLayers is the depth of the transient branch
const transientLayers = 4

// Options describes the network shape and the widths it is wired for
type Options struct {
	Kind  Kind
	Depth int   // trunk layers
	Width int   // trunk width
	Skips []int // trunk layers that re-receive the trunk input

	InXYZ int // declared encoded position width
	InDir int // declared encoded direction width
	Codes Inputs

	Transient bool
	BetaMin   float64
}

// DefaultOptions returns the standard 8×256 network with a skip at layer 4
func DefaultOptions(kind Kind) Options {
	return Options{
		Kind:    kind,
		Depth:   8,
		Width:   256,
		Skips:   []int{4},
		InXYZ:   63,
		InDir:   27,
		BetaMin: 0.03,
	}
}

// NeRF maps encoded position, encoded direction and conditioning codes to static
// density and color, plus transient density, color and uncertainty for the fine model
type NeRF struct {
	opts   Options
	xyzEmb *embedding.PosEmbedding
	dirEmb *embedding.PosEmbedding

	trunk    []*Linear
	xyzFinal *Linear
	sigma    *Linear
	dir      *Linear
	rgb      *Linear

	transient []*Linear
	tSigma    *Linear
	tRGB      *Linear
	tBeta     *Linear
}

// New builds a model. Declared widths are checked against the encoders so a
// misconfigured network fails here rather than mid-render.
func New(opts Options, xyzEmb, dirEmb *embedding.PosEmbedding, random *rand.Rand) (*NeRF, error) {
	if opts.Depth <= 0 || opts.Width < 2 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "%s: depth %d width %d", opts.Kind, opts.Depth, opts.Width)
	}
	if got := xyzEmb.OutDim(3); got != opts.InXYZ {
		return nil, errors.Wrapf(core.ErrChannelMismatch, "%s: position encoding is %d wide, model declares %d", opts.Kind, got, opts.InXYZ)
	}
	if got := dirEmb.OutDim(3); got != opts.InDir {
		return nil, errors.Wrapf(core.ErrChannelMismatch, "%s: direction encoding is %d wide, model declares %d", opts.Kind, got, opts.InDir)
	}
	if opts.Kind == Coarse {
		if opts.Transient {
			return nil, errors.Wrap(core.ErrInvalidConfig, "transient modeling requires the fine model")
		}
		if opts.Codes.Appearance != 0 || opts.Codes.Time != 0 {
			return nil, errors.Wrap(core.ErrInvalidConfig, "coarse model takes only outfit codes")
		}
	}
	if opts.Codes.Time != 0 && !opts.Transient {
		return nil, errors.Wrap(core.ErrInvalidConfig, "time codes feed the transient branch, which is disabled")
	}
	for _, s := range opts.Skips {
		if s <= 0 || s >= opts.Depth {
			return nil, errors.Wrapf(core.ErrInvalidConfig, "%s: skip layer %d outside (0, %d)", opts.Kind, s, opts.Depth)
		}
	}
	if opts.Transient && opts.BetaMin <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "beta_min %g must be positive", opts.BetaMin)
	}

	n := &NeRF{opts: opts, xyzEmb: xyzEmb, dirEmb: dirEmb}
	w := opts.Width
	trunkIn := opts.InXYZ + opts.Codes.Outfit
	for i := 0; i < opts.Depth; i++ {
		in := w
		switch {
		case i == 0:
			in = trunkIn
		case slices.Contains(opts.Skips, i):
			in = w + trunkIn
		}
		n.trunk = append(n.trunk, NewLinear(fmt.Sprintf("xyz_encoding_%d", i+1), in, w, ReLU, random))
	}
	n.xyzFinal = NewLinear("xyz_encoding_final", w, w, Identity, random)
	n.sigma = NewLinear("static_sigma", w, 1, Softplus, random)
	n.dir = NewLinear("dir_encoding", w+opts.InDir+opts.Codes.Appearance, w/2, ReLU, random)
	n.rgb = NewLinear("static_rgb", w/2, 3, Sigmoid, random)

	if opts.Transient {
		in := w + opts.Codes.Time
		for i := 0; i < transientLayers; i++ {
			n.transient = append(n.transient, NewLinear(fmt.Sprintf("transient_encoding_%d", i+1), in, w/2, ReLU, random))
			in = w / 2
		}
		n.tSigma = NewLinear("transient_sigma", w/2, 1, Softplus, random)
		n.tRGB = NewLinear("transient_rgb", w/2, 3, Sigmoid, random)
		n.tBeta = NewLinear("transient_beta", w/2, 1, Softplus, random)
	}
	return n, nil
}

// Kind returns coarse or fine
func (n *NeRF) Kind() Kind { return n.opts.Kind }

// Inputs returns the declared conditioning widths
func (n *NeRF) Inputs() Inputs { return n.opts.Codes }

// Transient reports whether the transient heads exist
func (n *NeRF) Transient() bool { return n.opts.Transient }

// BetaMin returns the uncertainty floor
func (n *NeRF) BetaMin() float64 { return n.opts.BetaMin }

// Layers returns every layer in a stable order
func (n *NeRF) Layers() []*Linear {
	layers := append([]*Linear{}, n.trunk...)
	layers = append(layers, n.xyzFinal, n.sigma, n.dir, n.rgb)
	if n.opts.Transient {
		layers = append(layers, n.transient...)
		layers = append(layers, n.tSigma, n.tRGB, n.tBeta)
	}
	return layers
}

// NumParams returns the total parameter count
func (n *NeRF) NumParams() int {
	total := 0
	for _, l := range n.Layers() {
		total += l.NumParams()
	}
	return total
}

// Query evaluates the network on every point of q in one batched pass
func (n *NeRF) Query(q *Query) (*Output, error) {
	if err := q.Validate(n.opts.Codes); err != nil {
		return nil, errors.Wrapf(err, "%s model", n.opts.Kind)
	}
	spr := q.SamplesPerRay

	trunkIn := hstack(n.xyzEmb.EncodeRows(q.Points), repeatRows(q.Outfit, spr))
	h := trunkIn
	for i, layer := range n.trunk {
		if i > 0 && slices.Contains(n.opts.Skips, i) {
			h = hstack(trunkIn, h)
		}
		h = layer.Forward(h)
	}

	out := &Output{Sigma: column(n.sigma.Forward(h))}
	final := n.xyzFinal.Forward(h)

	dirs := n.dirEmb.EncodeRows(normalizeRows(q.Directions))
	dirH := n.dir.Forward(hstack(final, repeatRows(dirs, spr), repeatRows(q.Appearance, spr)))
	out.RGB = n.rgb.Forward(dirH)

	if !n.opts.Transient || q.SkipTransient {
		return out, nil
	}
	th := hstack(final, repeatRows(q.Time, spr))
	for _, layer := range n.transient {
		th = layer.Forward(th)
	}
	out.TransientSigma = column(n.tSigma.Forward(th))
	out.TransientRGB = n.tRGB.Forward(th)
	out.TransientBeta = column(n.tBeta.Forward(th))
	return out, nil
}

func column(m *mat.Dense) []float64 {
	r, _ := m.Dims()
	return mat.Col(make([]float64, r), 0, m)
}

// normalizeRows returns unit-length copies of the rows of m so the direction
// encoding does not depend on how the ray was parameterized
func normalizeRows(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := m.RawRowView(i)
		v := mgl64.Vec3{row[0], row[1], row[2]}
		if l := v.Len(); l > 0 {
			v = v.Mul(1 / l)
		}
		copy(out.RawRowView(i), v[:])
	}
	return out
}
