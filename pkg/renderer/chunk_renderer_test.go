package renderer

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/field"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
	"github.com/df07/go-nerfw-renderer/pkg/scene"
)

// MockIntegrator writes each ray's global index into a one-column output
type MockIntegrator struct {
	failAt    int // global ray index whose chunk fails, -1 never
	callCount atomic.Int32
	onCall    func()
}

func (m *MockIntegrator) Layout() []integrator.FieldSpec {
	return []integrator.FieldSpec{{Name: integrator.KeyDepthCoarse, Width: 1}}
}

func (m *MockIntegrator) RenderRays(batch *core.RayBatch, offset int) (*integrator.Result, error) {
	m.callCount.Add(1)
	if m.onCall != nil {
		m.onCall()
	}
	if m.failAt >= offset && m.failAt < offset+batch.Len() {
		return nil, errors.Wrapf(core.ErrNonFinite, "ray %d", m.failAt)
	}
	// reuse the real result type by rendering through a one-key layout
	result := integrator.NewResult(batch.Len(), m.Layout())
	depth, _ := result.Get(integrator.KeyDepthCoarse)
	for i := 0; i < batch.Len(); i++ {
		depth.Set(i, 0, float64(offset+i))
	}
	return result, nil
}

func testBatch(n int) *core.RayBatch {
	rays := make([]core.Ray, n)
	for i := range rays {
		rays[i] = core.NewRay(mgl64.Vec3{0.05 * float64(i), 0, 3}, mgl64.Vec3{0, 0, -1}, 1, 5)
	}
	return &core.RayBatch{Rays: rays}
}

func TestNewChunkGrid(t *testing.T) {
	tests := []struct {
		n, size int
		want    []Chunk
	}{
		{0, 4, nil},
		{4, 4, []Chunk{{0, 0, 4}}},
		{10, 4, []Chunk{{0, 0, 4}, {1, 4, 8}, {2, 8, 10}}},
		{3, 10, []Chunk{{0, 0, 3}}},
		{3, 1, []Chunk{{0, 0, 1}, {1, 1, 2}, {2, 2, 3}}},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NewChunkGrid(tc.n, tc.size), "n=%d size=%d", tc.n, tc.size)
	}
}

func TestChunkRendererOrdering(t *testing.T) {
	for _, workers := range []int{1, 3, 0} {
		mock := &MockIntegrator{failAt: -1}
		r, err := NewChunkRenderer(mock, ChunkConfig{ChunkSize: 3, NumWorkers: workers}, nil)
		require.NoError(t, err)

		result, stats, err := r.Render(context.Background(), testBatch(10))
		require.NoError(t, err)
		assert.Equal(t, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, result.Scalar(integrator.KeyDepthCoarse))
		assert.Equal(t, 10, stats.TotalRays)
		assert.Equal(t, 4, stats.TotalChunks)
		assert.Equal(t, int32(4), mock.callCount.Load())
	}
}

func TestChunkRendererFirstErrorAborts(t *testing.T) {
	mock := &MockIntegrator{failAt: 4}
	r, err := NewChunkRenderer(mock, ChunkConfig{ChunkSize: 2, NumWorkers: 1}, core.NewNopLogger())
	require.NoError(t, err)

	result, _, err := r.Render(context.Background(), testBatch(10))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, core.ErrNonFinite)
	assert.Contains(t, err.Error(), "chunk 2 (rays 4-5)")
	// chunks after the failure are skipped
	assert.Equal(t, int32(3), mock.callCount.Load())
}

func TestChunkRendererCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	mock := &MockIntegrator{failAt: -1, onCall: cancel}
	r, err := NewChunkRenderer(mock, ChunkConfig{ChunkSize: 1, NumWorkers: 1}, nil)
	require.NoError(t, err)

	_, _, err = r.Render(ctx, testBatch(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), mock.callCount.Load())
}

func TestChunkRendererProgress(t *testing.T) {
	r, err := NewChunkRenderer(&MockIntegrator{failAt: -1}, ChunkConfig{ChunkSize: 4, NumWorkers: 2}, nil)
	require.NoError(t, err)

	var completions []ChunkCompletion
	_, _, err = r.RenderWithProgress(context.Background(), testBatch(9), func(c ChunkCompletion) {
		completions = append(completions, c)
	})
	require.NoError(t, err)
	require.Len(t, completions, 3)
	rays := 0
	for i, c := range completions {
		assert.Equal(t, i+1, c.ChunkNumber)
		assert.Equal(t, 3, c.TotalChunks)
		rays += c.Stats.Rays
	}
	assert.Equal(t, 9, rays)
}

func TestChunkRendererRejectsBadInput(t *testing.T) {
	_, err := NewChunkRenderer(&MockIntegrator{}, ChunkConfig{ChunkSize: 0}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	r, err := NewChunkRenderer(&MockIntegrator{failAt: -1}, DefaultChunkConfig(), nil)
	require.NoError(t, err)
	batch := testBatch(3)
	batch.TS = []int{0}
	_, _, err = r.Render(context.Background(), batch)
	assert.ErrorIs(t, err, core.ErrCodeCount)

	result, stats, err := r.Render(context.Background(), &core.RayBatch{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Len())
	assert.Equal(t, 0, stats.TotalChunks)
}

// Chunk size and worker count must not change any output, perturbation included
func TestChunkInvarianceWithHierarchical(t *testing.T) {
	fog := scene.NewFogScene()
	h, err := integrator.NewHierarchical(
		integrator.Options{NumCoarse: 12, NumFine: 12, Perturb: true, NoiseStd: 0.5, Seed: 3},
		integrator.Models{Coarse: fog.Field(field.Inputs{}, false), Fine: fog.Field(field.Inputs{}, false)})
	require.NoError(t, err)

	batch := testBatch(23)
	reference, _, err := mustChunkRenderer(t, h, 1024, 1).Render(context.Background(), batch)
	require.NoError(t, err)

	for _, cfg := range []ChunkConfig{{ChunkSize: 1, NumWorkers: 1}, {ChunkSize: 5, NumWorkers: 1}, {ChunkSize: 7, NumWorkers: 4}, {ChunkSize: 23, NumWorkers: 2}} {
		got, stats, err := mustChunkRenderer(t, h, cfg.ChunkSize, cfg.NumWorkers).Render(context.Background(), batch)
		require.NoError(t, err)
		assert.Equal(t, 23*(12+24), stats.TotalPoints)
		for _, key := range reference.Keys() {
			a, _ := reference.Get(key)
			b, _ := got.Get(key)
			assert.True(t, mat.Equal(a, b), "%s differs with %+v", key, cfg)
		}
	}
}

func mustChunkRenderer(t *testing.T, integ integrator.Integrator, size, workers int) *ChunkRenderer {
	t.Helper()
	r, err := NewChunkRenderer(integ, ChunkConfig{ChunkSize: size, NumWorkers: workers}, core.NewNopLogger())
	require.NoError(t, err)
	return r
}
