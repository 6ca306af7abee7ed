package embedding

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"pgregory.net/rand"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

func TestPosEmbeddingOutDim(t *testing.T) {
	tests := []struct {
		name         string
		freqs        int
		includeInput bool
		d            int
		want         int
	}{
		{"xyz with input", 10, true, 3, 63},
		{"dir with input", 4, true, 3, 27},
		{"no input", 4, false, 3, 24},
		{"no frequencies", 0, true, 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPosEmbedding(tt.freqs, tt.includeInput).OutDim(tt.d))
		})
	}
}

func TestPosEmbeddingEncode(t *testing.T) {
	p := NewPosEmbedding(2, true)
	x := []float64{0.5, -1, 2}
	got := make([]float64, p.OutDim(3))
	p.Encode(x, got)

	want := []float64{
		0.5, -1, 2,
		math.Sin(0.5), math.Sin(-1), math.Sin(2),
		math.Cos(0.5), math.Cos(-1), math.Cos(2),
		math.Sin(1), math.Sin(-2), math.Sin(4),
		math.Cos(1), math.Cos(-2), math.Cos(4),
	}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("Encode mismatch (-want +got):\n%s", diff)
	}
}

func TestPosEmbeddingEncodeRowsMatchesEncode(t *testing.T) {
	p := NewPosEmbedding(3, true)
	m := mat.NewDense(2, 3, []float64{0.1, 0.2, 0.3, -1, 0, 1})
	out := p.EncodeRows(m)

	r, c := out.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, p.OutDim(3), c)

	row := make([]float64, c)
	p.Encode([]float64{-1, 0, 1}, row)
	assert.Equal(t, row, out.RawRowView(1))
}

func TestTableLookup(t *testing.T) {
	table, err := NewTableFromRows("outfit", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Vocab())
	assert.Equal(t, 2, table.Dim())

	v, err := table.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, v)

	v[0] = 100
	again, _ := table.Lookup(1)
	assert.Equal(t, 3.0, again[0], "Lookup must return a copy")

	for _, idx := range []int{-1, 2, 700} {
		_, err := table.Lookup(idx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrIndexOutOfRange))
	}
}

func TestNewTableRejectsBadShapes(t *testing.T) {
	_, err := NewTable("a", 0, 48, rand.New(1))
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))

	_, err = NewTableFromRows("a", [][]float64{{1, 2}, {3}})
	assert.True(t, errors.Is(err, core.ErrChannelMismatch))
}

func TestNewTableIsSeeded(t *testing.T) {
	a, err := NewTable("a", 4, 3, rand.New(9))
	require.NoError(t, err)
	b, err := NewTable("a", 4, 3, rand.New(9))
	require.NoError(t, err)
	assert.Equal(t, a.Rows(), b.Rows())
}

func TestChannelResolve(t *testing.T) {
	table, err := NewTableFromRows("outfit", [][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)

	t.Run("Disabled", func(t *testing.T) {
		ch := Disabled()
		assert.False(t, ch.Enabled())
		assert.Equal(t, 0, ch.Dim())
		m, err := ch.Resolve(core.CodesFromIDs([]int{5}), 3)
		require.NoError(t, err)
		assert.Nil(t, m)
	})

	t.Run("IDs", func(t *testing.T) {
		m, err := Enabled(table).Resolve(core.CodesFromIDs([]int{1, 0, 1}), 3)
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 4}, m.RawRowView(0))
		assert.Equal(t, []float64{1, 2}, m.RawRowView(1))
		assert.Equal(t, []float64{3, 4}, m.RawRowView(2))
	})

	t.Run("Vectors", func(t *testing.T) {
		m, err := Enabled(table).Resolve(core.CodesFromVectors([][]float64{{0.5, 0.5}}), 1)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.5, 0.5}, m.RawRowView(0))

		_, err = Enabled(table).Resolve(core.CodesFromVectors([][]float64{{0.5}}), 1)
		assert.True(t, errors.Is(err, core.ErrChannelMismatch))
	})

	t.Run("Batch-level code is a caller error", func(t *testing.T) {
		_, err := Enabled(table).Resolve(core.CodesFromIDs([]int{1}), 4)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrCodeCount))
	})

	t.Run("Out of range", func(t *testing.T) {
		_, err := Enabled(table).Resolve(core.CodesFromIDs([]int{0, 2}), 2)
		assert.True(t, errors.Is(err, core.ErrIndexOutOfRange))
	})
}
