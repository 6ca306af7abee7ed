package integrator

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rand"
)

func TestDeltas(t *testing.T) {
	assert.Equal(t, []float64{2, 4, sentinelDelta}, Deltas([]float64{1, 2, 4}, 2, false))
	assert.Equal(t, []float64{degenerateDelta, 0, 0}, Deltas([]float64{3, 3, 3}, 1, true))
	assert.Empty(t, Deltas(nil, 1, false))
}

func TestAlpha(t *testing.T) {
	assert.Equal(t, 0.0, Alpha(-5, 1))
	assert.Equal(t, 0.0, Alpha(0, sentinelDelta))
	assert.InDelta(t, 1-math.Exp(-2), Alpha(1, 2), 1e-12)
	assert.Equal(t, 1.0, Alpha(1, sentinelDelta))
}

func TestCompositeEmptyMedium(t *testing.T) {
	ts := []float64{1, 2, 3}
	deltas := Deltas(ts, 1, false)
	colors := []mgl64.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	black := Composite(ts, deltas, []float64{0, 0, 0}, colors, false)
	assert.Equal(t, mgl64.Vec3{}, black.RGB)
	assert.Equal(t, 0.0, black.Opacity)
	assert.Equal(t, 0.0, black.Depth)

	white := Composite(ts, deltas, []float64{0, 0, 0}, colors, true)
	assert.Equal(t, mgl64.Vec3{1, 1, 1}, white.RGB)
}

func TestCompositeSingleOpaqueSample(t *testing.T) {
	ts := []float64{0.25, 0.5, 0.75}
	deltas := Deltas(ts, 1, false)
	colors := []mgl64.Vec3{{1, 1, 1}, {0.2, 0.4, 0.6}, {1, 1, 1}}

	c := Composite(ts, deltas, []float64{0, 1e6, 5}, colors, true)
	assert.InDeltaSlice(t, []float64{0, 1, 0}, c.Weights, 1e-9)
	assert.InDelta(t, 1.0, c.Opacity, 1e-9)
	assert.InDelta(t, 0.5, c.Depth, 1e-9)
	assert.True(t, c.RGB.ApproxEqualThreshold(colors[1], 1e-9))
}

func TestCompositeWeightBounds(t *testing.T) {
	random := rand.New(11)
	for trial := 0; trial < 100; trial++ {
		k := 1 + random.Intn(16)
		ts := make([]float64, k)
		sigma := make([]float64, k)
		colors := make([]mgl64.Vec3, k)
		acc := 2.0
		for i := range ts {
			acc += random.Float64() * 0.3
			ts[i] = acc
			sigma[i] = random.NormFloat64() * 3
			colors[i] = mgl64.Vec3{random.Float64(), random.Float64(), random.Float64()}
		}
		c := Composite(ts, Deltas(ts, 1, false), sigma, colors, false)
		for _, w := range c.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
		}
		assert.LessOrEqual(t, c.Opacity, 1+1e-12)
		for _, ch := range c.RGB {
			assert.GreaterOrEqual(t, ch, 0.0)
			assert.LessOrEqual(t, ch, 1+1e-12)
		}
		assert.GreaterOrEqual(t, c.Depth, 0.0)
		assert.LessOrEqual(t, c.Depth, ts[k-1]+1e-9)
	}
}

func TestCompositeTransient(t *testing.T) {
	ts := []float64{1, 2, 3, 4}
	deltas := Deltas(ts, 1, false)
	sigmaS := []float64{0, 0.5, 2, 0}
	colorS := []mgl64.Vec3{{1, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	colorT := []mgl64.Vec3{{1, 1, 1}, {1, 1, 1}, {1, 1, 1}, {1, 1, 1}}
	beta := []float64{3, 3, 3, 3}

	t.Run("no transient density matches the static composite", func(t *testing.T) {
		static := Composite(ts, deltas, sigmaS, colorS, false)
		c := CompositeTransient(ts, deltas, sigmaS, colorS, []float64{0, 0, 0, 0}, colorT, beta, 0.1, false)
		assert.InDeltaSlice(t, static.Weights, c.Weights, 1e-12)
		assert.True(t, c.RGB.ApproxEqual(static.RGB))
		assert.Equal(t, mgl64.Vec3{}, c.Transient)
		assert.InDelta(t, 0.1, c.Beta, 1e-12)
	})

	t.Run("transient only", func(t *testing.T) {
		c := CompositeTransient(ts, deltas, []float64{0, 0, 0, 0}, colorS, []float64{0, 1e6, 0, 0}, colorT, beta, 0.1, false)
		assert.True(t, c.RGB.ApproxEqualThreshold(mgl64.Vec3{1, 1, 1}, 1e-9))
		assert.Equal(t, mgl64.Vec3{}, c.Static)
		assert.InDelta(t, 3.1, c.Beta, 1e-9)
		assert.InDelta(t, 2.0, c.Depth, 1e-9)
	})

	t.Run("shares split each weight", func(t *testing.T) {
		sigmaT := []float64{0, 0.5, 0, 0}
		c := CompositeTransient(ts, deltas, sigmaS, colorS, sigmaT, colorT, beta, 0.1, true)
		assert.True(t, c.RGB.ApproxEqual(c.Static.Add(c.Transient).Add(mgl64.Vec3{1, 1, 1}.Mul(1-c.Opacity))))
		// the second sample is half transient
		assert.InDelta(t, 0.1+3*0.5*c.Weights[1], c.Beta, 1e-12)
		assert.LessOrEqual(t, c.Opacity, 1.0)
	})
}
