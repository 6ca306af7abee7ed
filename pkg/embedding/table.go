package embedding

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"pgregory.net/rand"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// Table maps an integer index to a learned vector
type Table struct {
	name string
	rows *mat.Dense // vocab × dim
}

// NewTable creates a vocab×dim table with N(0, 1) entries
func NewTable(name string, vocab, dim int, random *rand.Rand) (*Table, error) {
	if vocab <= 0 || dim <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "table %q: vocab %d and dim %d must be positive", name, vocab, dim)
	}
	data := make([]float64, vocab*dim)
	for i := range data {
		data[i] = random.NormFloat64()
	}
	return &Table{name: name, rows: mat.NewDense(vocab, dim, data)}, nil
}

// NewTableFromRows creates a table from explicit vectors, e.g. a checkpoint
func NewTableFromRows(name string, rows [][]float64) (*Table, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "table %q is empty", name)
	}
	dim := len(rows[0])
	m := mat.NewDense(len(rows), dim, nil)
	for i, r := range rows {
		if len(r) != dim {
			return nil, errors.Wrapf(core.ErrChannelMismatch, "table %q row %d has %d values, want %d", name, i, len(r), dim)
		}
		m.SetRow(i, r)
	}
	return &Table{name: name, rows: m}, nil
}

// Name returns the table name
func (t *Table) Name() string { return t.name }

// Vocab returns the number of entries
func (t *Table) Vocab() int {
	r, _ := t.rows.Dims()
	return r
}

// Dim returns the vector length
func (t *Table) Dim() int {
	_, c := t.rows.Dims()
	return c
}

// Lookup returns a copy of the vector stored at idx
func (t *Table) Lookup(idx int) ([]float64, error) {
	if idx < 0 || idx >= t.Vocab() {
		return nil, errors.Wrapf(core.ErrIndexOutOfRange, "table %q: index %d not in [0, %d)", t.name, idx, t.Vocab())
	}
	return mat.Row(nil, idx, t.rows), nil
}

// LookupBatch gathers one row per id
func (t *Table) LookupBatch(ids []int) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	out := mat.NewDense(len(ids), t.Dim(), nil)
	for i, id := range ids {
		if id < 0 || id >= t.Vocab() {
			return nil, errors.Wrapf(core.ErrIndexOutOfRange, "table %q: index %d (ray %d) not in [0, %d)", t.name, id, i, t.Vocab())
		}
		copy(out.RawRowView(i), t.rows.RawRowView(id))
	}
	return out, nil
}

// Rows returns a copy of all vectors
func (t *Table) Rows() [][]float64 {
	out := make([][]float64, t.Vocab())
	for i := range out {
		out[i] = mat.Row(nil, i, t.rows)
	}
	return out
}
