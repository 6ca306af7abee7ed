// Package embedding holds the deterministic frequency encoder and the learned
// conditioning tables that feed the radiance field.
package embedding

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// PosEmbedding maps x to (x, sin(2^0 x), cos(2^0 x), ..., sin(2^(L-1) x), cos(2^(L-1) x)).
// Each sin/cos block covers every input component.
type PosEmbedding struct {
	freqs        []float64
	includeInput bool
}

// NewPosEmbedding creates an encoder with numFreqs log-spaced frequencies
func NewPosEmbedding(numFreqs int, includeInput bool) *PosEmbedding {
	freqs := make([]float64, numFreqs)
	for i := range freqs {
		freqs[i] = math.Ldexp(1, i)
	}
	return &PosEmbedding{freqs: freqs, includeInput: includeInput}
}

// NumFreqs returns L
func (p *PosEmbedding) NumFreqs() int {
	return len(p.freqs)
}

// OutDim returns the encoded width for a d-dimensional input
func (p *PosEmbedding) OutDim(d int) int {
	n := 2 * len(p.freqs) * d
	if p.includeInput {
		n += d
	}
	return n
}

// Encode writes the encoding of x into dst, which must hold OutDim(len(x)) values
func (p *PosEmbedding) Encode(x, dst []float64) {
	d := len(x)
	off := 0
	if p.includeInput {
		copy(dst, x)
		off = d
	}
	for _, f := range p.freqs {
		for j, v := range x {
			s, c := math.Sincos(f * v)
			dst[off+j] = s
			dst[off+d+j] = c
		}
		off += 2 * d
	}
}

// EncodeRows encodes every row of m
func (p *PosEmbedding) EncodeRows(m mat.Matrix) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(rows, p.OutDim(cols), nil)
	x := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(x, i, m)
		p.Encode(x, out.RawRowView(i))
	}
	return out
}
