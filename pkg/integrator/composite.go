package integrator

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	// sentinelDelta stands in for the unbounded last interval of a ray
	sentinelDelta = 1e10
	// degenerateDelta is the width given to the single sample of a zero-length ray
	degenerateDelta = 1e-10
)

// Deltas returns the world-space interval width behind each sample:
// (t[i+1]-t[i])·‖direction‖, with the last interval extended to a sentinel.
// A degenerate ray keeps only its first sample, with a tiny width.
func Deltas(t []float64, dirNorm float64, degenerate bool) []float64 {
	d := make([]float64, len(t))
	if len(t) == 0 {
		return d
	}
	if degenerate {
		d[0] = degenerateDelta
		return d
	}
	for i := 0; i < len(t)-1; i++ {
		d[i] = (t[i+1] - t[i]) * dirNorm
	}
	d[len(t)-1] = sentinelDelta
	return d
}

// Alpha is the opacity of an interval of width delta with density sigma.
// Negative densities are treated as empty space.
func Alpha(sigma, delta float64) float64 {
	return -math.Expm1(-math.Max(sigma, 0) * delta)
}

// Weights returns w_i = T_i·α_i with T_i = ∏_{j<i}(1-α_j)
func Weights(alphas []float64) []float64 {
	w := make([]float64, len(alphas))
	transmittance := 1.0
	for i, a := range alphas {
		w[i] = transmittance * a
		transmittance *= 1 - a
	}
	return w
}

// Composited is the integral of one ray
type Composited struct {
	Weights []float64
	Opacity float64 // Σ w_i
	RGB     mgl64.Vec3
	Depth   float64 // Σ w_i t_i
}

// Composite integrates colors along one ray. When whiteBackground is set the
// unabsorbed remainder 1-Σw is added to every channel.
func Composite(t, deltas, sigma []float64, colors []mgl64.Vec3, whiteBackground bool) Composited {
	alphas := make([]float64, len(t))
	for i := range alphas {
		alphas[i] = Alpha(sigma[i], deltas[i])
	}
	return accumulate(t, Weights(alphas), colors, whiteBackground)
}

func accumulate(t, weights []float64, colors []mgl64.Vec3, whiteBackground bool) Composited {
	c := Composited{Weights: weights}
	for i, w := range weights {
		c.Opacity += w
		c.RGB = c.RGB.Add(colors[i].Mul(w))
		c.Depth += w * t[i]
	}
	if whiteBackground {
		rest := 1 - c.Opacity
		c.RGB = c.RGB.Add(mgl64.Vec3{rest, rest, rest})
	}
	return c
}

// TransientComposited is the integral of one ray through the static and transient
// fields together
type TransientComposited struct {
	Composited            // combined static+transient radiance
	Static     mgl64.Vec3 // static share of the combined color
	Transient  mgl64.Vec3 // transient share of the combined color
	Beta       float64    // composited uncertainty including the floor
}

// CompositeTransient integrates the combined field. Densities are summed per sample
// before computing α, and each sample's color is the density-weighted mix of its
// static and transient colors. β is composited with the transient share of each
// weight and floored by betaMin.
func CompositeTransient(t, deltas, sigmaS []float64, colorS []mgl64.Vec3, sigmaT []float64, colorT []mgl64.Vec3, beta []float64, betaMin float64, whiteBackground bool) TransientComposited {
	k := len(t)
	alphas := make([]float64, k)
	shares := make([]float64, k)
	for i := 0; i < k; i++ {
		s, tr := math.Max(sigmaS[i], 0), math.Max(sigmaT[i], 0)
		alphas[i] = Alpha(s+tr, deltas[i])
		if s+tr > 0 {
			shares[i] = tr / (s + tr)
		}
	}
	weights := Weights(alphas)

	out := TransientComposited{Composited: Composited{Weights: weights}, Beta: betaMin}
	for i, w := range weights {
		ws, wt := w*(1-shares[i]), w*shares[i]
		out.Static = out.Static.Add(colorS[i].Mul(ws))
		out.Transient = out.Transient.Add(colorT[i].Mul(wt))
		out.Beta += wt * beta[i]
		out.Opacity += w
		out.Depth += w * t[i]
	}
	out.RGB = out.Static.Add(out.Transient)
	if whiteBackground {
		rest := 1 - out.Opacity
		out.RGB = out.RGB.Add(mgl64.Vec3{rest, rest, rest})
	}
	return out
}
