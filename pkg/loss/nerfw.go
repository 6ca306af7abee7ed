// Package loss scores rendered rays against target colors the way an
// in-the-wild radiance field is trained.
package loss

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
)

// Term names, in the order Terms.Named lists them
const (
	TermCoarse = "c_l"
	TermFine   = "f_l"
	TermBeta   = "b_l"
	TermSigma  = "s_l"
)

// NeRFW is the reconstruction loss with uncertainty-weighted fine color and a
// transient density penalty
type NeRFW struct {
	Coef    float64 // scales every term
	LambdaU float64 // weight of the transient density penalty
}

// NewNeRFW returns the loss with the usual transient penalty of 0.01
func NewNeRFW(coef float64) NeRFW {
	return NeRFW{Coef: coef, LambdaU: 0.01}
}

// Terms holds the individual loss terms. Fine is only set when a fine pass ran,
// Beta and Sigma only when it had a transient head.
type Terms struct {
	Coarse float64
	Fine   float64
	Beta   float64
	Sigma  float64

	HasFine      bool
	HasTransient bool
}

// Total sums the present terms
func (t Terms) Total() float64 {
	return t.Coarse + t.Fine + t.Beta + t.Sigma
}

// Named returns the present terms by name
func (t Terms) Named() map[string]float64 {
	out := map[string]float64{TermCoarse: t.Coarse}
	if t.HasFine {
		out[TermFine] = t.Fine
	}
	if t.HasTransient {
		out[TermBeta] = t.Beta
		out[TermSigma] = t.Sigma
	}
	return out
}

// Compute scores a render against one target color per ray
func (l NeRFW) Compute(result *integrator.Result, targets []mgl64.Vec3) (Terms, error) {
	if result.Len() != len(targets) {
		return Terms{}, errors.Wrapf(core.ErrCodeCount, "%d targets for %d rays", len(targets), result.Len())
	}
	if !result.Has(integrator.KeyRGBCoarse) {
		return Terms{}, errors.Errorf("result has no %q output", integrator.KeyRGBCoarse)
	}
	if len(targets) == 0 {
		return Terms{}, errors.New("cannot score an empty batch")
	}

	var t Terms
	t.Coarse = 0.5 * stat.Mean(squaredErrors(result.Colors(integrator.KeyRGBCoarse), targets, nil), nil)

	if result.Has(integrator.KeyRGBFine) {
		t.HasFine = true
		fine := result.Colors(integrator.KeyRGBFine)
		if !result.Has(integrator.KeyBeta) {
			t.Fine = 0.5 * stat.Mean(squaredErrors(fine, targets, nil), nil)
		} else {
			t.HasTransient = true
			beta := result.Scalar(integrator.KeyBeta)
			t.Fine = stat.Mean(squaredErrors(fine, targets, beta), nil)

			logBeta := make([]float64, len(beta))
			for i, b := range beta {
				logBeta[i] = math.Log(b)
			}
			t.Beta = 3 + stat.Mean(logBeta, nil)

			sigmas, _ := result.Get(integrator.KeyTransientSigmas)
			rows, cols := sigmas.Dims()
			t.Sigma = l.LambdaU * mat.Sum(sigmas) / float64(rows*cols)
		}
	}

	t.Coarse *= l.Coef
	t.Fine *= l.Coef
	t.Beta *= l.Coef
	t.Sigma *= l.Coef
	return t, nil
}

// squaredErrors returns the per-channel squared errors, each divided by 2β² of
// its ray when beta is given
func squaredErrors(pred, targets []mgl64.Vec3, beta []float64) []float64 {
	out := make([]float64, 0, 3*len(pred))
	for i, p := range pred {
		scale := 1.0
		if beta != nil {
			scale = 1 / (2 * beta[i] * beta[i])
		}
		d := p.Sub(targets[i])
		for _, c := range d {
			out = append(out, c*c*scale)
		}
	}
	return out
}
