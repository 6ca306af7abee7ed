package integrator

import (
	"cmp"
	"math"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// pdfEpsilon keeps empty coarse bins sampleable and guards zero-width CDF steps
const pdfEpsilon = 1e-5

// StratifiedSamples places one sample in each of n equal bins over [near, far].
// Samples sit at bin midpoints unless perturb is set, in which case each is drawn
// uniformly inside its bin. With useDisparity the bins are equal in 1/t instead of t.
func StratifiedSamples(near, far float64, n int, perturb, useDisparity bool, sampler core.Sampler) []float64 {
	t := make([]float64, n)
	for i := range t {
		u := 0.5
		if perturb {
			u = sampler.Get1D()
		}
		s := (float64(i) + u) / float64(n)
		if useDisparity {
			t[i] = 1 / (1/near*(1-s) + 1/far*s)
		} else {
			t[i] = near*(1-s) + far*s
		}
	}
	return t
}

// Midpoints returns the n-1 midpoints between consecutive samples
func Midpoints(t []float64) []float64 {
	if len(t) < 2 {
		return nil
	}
	mids := make([]float64, len(t)-1)
	for i := range mids {
		mids[i] = 0.5 * (t[i] + t[i+1])
	}
	return mids
}

// SamplePDF draws n samples from the piecewise-constant density whose bin edges are
// bins (len(weights)+1 values) and whose unnormalized bin masses are weights.
// Draws are stratified in CDF space: at stratum midpoints when det is set,
// jittered inside each stratum otherwise. The result is sorted.
func SamplePDF(bins, weights []float64, n int, det bool, sampler core.Sampler) []float64 {
	m := len(weights)
	cdf := make([]float64, m+1)
	total := 0.0
	for _, w := range weights {
		total += w + pdfEpsilon
	}
	for i, w := range weights {
		cdf[i+1] = cdf[i] + (w+pdfEpsilon)/total
	}
	cdf[m] = 1

	samples := make([]float64, n)
	for k := range samples {
		jitter := 0.5
		if !det {
			jitter = sampler.Get1D()
		}
		u := (float64(k) + jitter) / float64(n)

		// first edge with cdf > u
		above := sort.Search(m+1, func(j int) bool { return cdf[j] > u })
		below := max(above-1, 0)
		above = min(above, m)

		denom := cdf[above] - cdf[below]
		if denom < pdfEpsilon {
			denom = 1
		}
		samples[k] = bins[below] + (u-cdf[below])/denom*(bins[above]-bins[below])
	}
	return samples
}

// MergeSamples merges coarse and fine distances into one ray-ordered set.
// Equal distances keep their input order and are then nudged apart so the result is
// strictly increasing; degenerate rays keep their coincident samples.
func MergeSamples(coarse, fine []float64, degenerate bool) []float64 {
	merged := make([]float64, 0, len(coarse)+len(fine))
	merged = append(merged, coarse...)
	merged = append(merged, fine...)
	slices.SortStableFunc(merged, cmp.Compare[float64])
	if degenerate {
		return merged
	}
	for i := 1; i < len(merged); i++ {
		if merged[i] <= merged[i-1] {
			merged[i] = math.Nextafter(merged[i-1], math.Inf(1))
		}
	}
	return merged
}
