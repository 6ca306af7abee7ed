package field

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"pgregory.net/rand"
)

// Activation is the nonlinearity applied after a Linear layer
type Activation int

const (
	Identity Activation = iota
	ReLU
	Softplus
	Sigmoid
)

// Linear is a dense layer y = act(xW + b) evaluated on a whole batch of rows
type Linear struct {
	Name string
	W    *mat.Dense // in × out
	B    []float64  // out
	Act  Activation
}

// NewLinear creates a layer initialized uniformly in ±1/sqrt(in), the usual default
// for fully connected layers
func NewLinear(name string, in, out int, act Activation, random *rand.Rand) *Linear {
	k := 1 / math.Sqrt(float64(in))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (2*random.Float64() - 1) * k
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = (2*random.Float64() - 1) * k
	}
	return &Linear{Name: name, W: mat.NewDense(in, out, w), B: b, Act: act}
}

// In returns the input width
func (l *Linear) In() int {
	r, _ := l.W.Dims()
	return r
}

// Out returns the output width
func (l *Linear) Out() int {
	_, c := l.W.Dims()
	return c
}

// NumParams returns the number of weights and biases
func (l *Linear) NumParams() int {
	return l.In()*l.Out() + len(l.B)
}

// Forward applies the layer to every row of x
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	rows, _ := x.Dims()
	var y mat.Dense
	y.Mul(x, l.W)
	out := l.Out()
	for i := 0; i < rows; i++ {
		row := y.RawRowView(i)
		for j := 0; j < out; j++ {
			row[j] = activate(l.Act, row[j]+l.B[j])
		}
	}
	return &y
}

func activate(act Activation, v float64) float64 {
	switch act {
	case ReLU:
		return math.Max(v, 0)
	case Softplus:
		// log(1+e^v) without overflow for large v
		if v > 20 {
			return v
		}
		return math.Log1p(math.Exp(v))
	case Sigmoid:
		return 1 / (1 + math.Exp(-v))
	}
	return v
}

// hstack concatenates the columns of the non-nil parts. All parts share a row count.
func hstack(parts ...*mat.Dense) *mat.Dense {
	rows, cols := 0, 0
	for _, p := range parts {
		if p == nil {
			continue
		}
		r, c := p.Dims()
		rows = r
		cols += c
	}
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		dst := out.RawRowView(i)
		off := 0
		for _, p := range parts {
			if p == nil {
				continue
			}
			off += copy(dst[off:], p.RawRowView(i))
		}
	}
	return out
}

// repeatRows broadcasts a per-ray matrix to per-sample rows: row i of m becomes rows
// i*times ... i*times+times-1 of the result
func repeatRows(m *mat.Dense, times int) *mat.Dense {
	if m == nil {
		return nil
	}
	rows, cols := m.Dims()
	out := mat.NewDense(rows*times, cols, nil)
	for i := 0; i < rows; i++ {
		src := m.RawRowView(i)
		for s := 0; s < times; s++ {
			copy(out.RawRowView(i*times+s), src)
		}
	}
	return out
}
