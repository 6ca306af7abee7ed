package core

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRays(t *testing.T) {
	tests := []struct {
		name    string
		rows    [][]float64
		wantErr bool
	}{
		{
			name: "Two valid rays",
			rows: [][]float64{
				{0, 0, 0, 0, 0, -1, 2, 6},
				{1, 2, 3, 0, 1, 0, 0.5, 0.5},
			},
		},
		{
			name:    "Short row",
			rows:    [][]float64{{0, 0, 0, 0, 0, -1, 2}},
			wantErr: true,
		},
		{
			name:    "Far before near",
			rows:    [][]float64{{0, 0, 0, 0, 0, -1, 6, 2}},
			wantErr: true,
		},
		{
			name:    "NaN near",
			rows:    [][]float64{{0, 0, 3, 0, 0, -1, math.NaN(), 5}},
			wantErr: true,
		},
		{
			name:    "Infinite direction",
			rows:    [][]float64{{0, 0, 3, 0, math.Inf(1), -1, 2, 5}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rays, err := ParseRays(tt.rows)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrRayFormat))
				return
			}
			require.NoError(t, err)
			require.Len(t, rays, len(tt.rows))
			for i, r := range rays {
				assert.Equal(t, tt.rows[i], r.Row(), "row %d should round trip", i)
			}
		})
	}
}

func TestRayAtAndDegenerate(t *testing.T) {
	r := NewRay(mgl64.Vec3{1, 0, 0}, mgl64.Vec3{0, 2, 0}, 1, 3)
	assert.True(t, r.At(1.5).ApproxEqual(mgl64.Vec3{1, 3, 0}))
	assert.False(t, r.Degenerate())

	r.Far = r.Near
	assert.True(t, r.Degenerate())
}

func TestRayBatchValidate(t *testing.T) {
	rays := []Ray{
		NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1}, 0, 1),
		NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1}, 0, 1),
		NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1}, 0, 1),
	}

	ok := &RayBatch{Rays: rays, TS: []int{0, 1, 2}, Outfits: CodesFromIDs([]int{1, 0, 1})}
	require.NoError(t, ok.Validate())

	constant := &RayBatch{Rays: rays, TS: []int{0, 1, 2}, Outfits: CodesFromIDs([]int{1})}
	err := constant.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCodeCount))
	assert.Contains(t, err.Error(), "batch-level")

	shortTS := &RayBatch{Rays: rays, TS: []int{0}}
	assert.True(t, errors.Is(shortTS.Validate(), ErrCodeCount))

	noCodes := &RayBatch{Rays: rays}
	assert.NoError(t, noCodes.Validate())

	// Rays built in code bypass ParseRay and are checked here
	reversed := &RayBatch{Rays: []Ray{rays[0], NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1}, 3, 1)}}
	err = reversed.Validate()
	assert.True(t, errors.Is(err, ErrRayFormat))
	assert.Contains(t, err.Error(), "ray 1")

	nan := &RayBatch{Rays: []Ray{NewRay(mgl64.Vec3{0, 0, 3}, mgl64.Vec3{0, 0, -1}, math.NaN(), 5)}}
	assert.True(t, errors.Is(nan.Validate(), ErrRayFormat))
}

func TestRayBatchSlice(t *testing.T) {
	rays := make([]Ray, 5)
	for i := range rays {
		rays[i] = NewRay(mgl64.Vec3{float64(i), 0, 0}, mgl64.Vec3{0, 0, 1}, 0, 1)
	}
	b := &RayBatch{
		Rays:    rays,
		TS:      []int{0, 1, 2, 3, 4},
		Outfits: CodesFromVectors([][]float64{{0}, {1}, {2}, {3}, {4}}),
	}

	s := b.Slice(1, 4)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []int{1, 2, 3}, s.TS)
	assert.True(t, s.Outfits.Embedded())
	assert.Equal(t, [][]float64{{1}, {2}, {3}}, s.Outfits.Vectors)
	assert.Equal(t, 0, s.Appearance.Len())
	assert.Equal(t, 1.0, s.Rays[0].Origin[0])
}
