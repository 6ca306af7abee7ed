// Package metrics provides image quality measures for rendered rays.
package metrics

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// MSE is the mean squared error over every color channel
func MSE(pred, targets []mgl64.Vec3) (float64, error) {
	if len(pred) != len(targets) {
		return 0, errors.Wrapf(core.ErrCodeCount, "%d predictions for %d targets", len(pred), len(targets))
	}
	if len(pred) == 0 {
		return 0, errors.New("no colors to compare")
	}
	p := flatten(pred)
	floats.Sub(p, flatten(targets))
	floats.Mul(p, p)
	return stat.Mean(p, nil), nil
}

// PSNR is the peak signal to noise ratio in dB for colors in [0,1]. Identical
// inputs give +Inf.
func PSNR(pred, targets []mgl64.Vec3) (float64, error) {
	mse, err := MSE(pred, targets)
	if err != nil {
		return 0, err
	}
	return -10 * math.Log10(mse), nil
}

func flatten(colors []mgl64.Vec3) []float64 {
	out := make([]float64, 0, 3*len(colors))
	for _, c := range colors {
		out = append(out, c[:]...)
	}
	return out
}

// Validation accumulates per-batch loss and PSNR over a validation pass.
// The caller resets it between passes.
type Validation struct {
	losses []float64
	psnrs  []float64
}

// Add records one batch
func (v *Validation) Add(loss, psnr float64) {
	v.losses = append(v.losses, loss)
	v.psnrs = append(v.psnrs, psnr)
}

// Len returns the number of recorded batches
func (v *Validation) Len() int {
	return len(v.losses)
}

// Mean returns the mean loss and PSNR. ok is false when nothing was recorded.
func (v *Validation) Mean() (loss, psnr float64, ok bool) {
	if len(v.losses) == 0 {
		return 0, 0, false
	}
	return stat.Mean(v.losses, nil), stat.Mean(v.psnrs, nil), true
}

// Reset clears the recorded batches
func (v *Validation) Reset() {
	v.losses = v.losses[:0]
	v.psnrs = v.psnrs[:0]
}
