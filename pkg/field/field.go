// Package field defines the radiance field interface queried by the integrator and
// the NeRF-W style MLP that implements it.
package field

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// Inputs declares the conditioning code widths a field consumes (0 = not consumed)
type Inputs struct {
	Appearance int
	Outfit     int
	Time       int
}

// Field is a radiance field evaluated on all sample points of a chunk at once
type Field interface {
	Query(q *Query) (*Output, error)
	Inputs() Inputs
	Transient() bool
}

// Query is a batch of sample points. Points are ray-major: the samples of ray r
// occupy rows r*SamplesPerRay ... (r+1)*SamplesPerRay-1.
type Query struct {
	Points        *mat.Dense // P × 3
	Directions    *mat.Dense // R × 3, one per ray
	SamplesPerRay int
	Appearance    *mat.Dense // R × Inputs().Appearance, nil when not consumed
	Outfit        *mat.Dense // R × Inputs().Outfit
	Time          *mat.Dense // R × Inputs().Time
	SkipTransient bool       // evaluate the static heads only
}

// NumRays returns R
func (q *Query) NumRays() int {
	r, _ := q.Directions.Dims()
	return r
}

// NumPoints returns P
func (q *Query) NumPoints() int {
	r, _ := q.Points.Dims()
	return r
}

// Output holds per-point field values. Transient fields are nil unless the field
// models transient content and the query asked for it.
type Output struct {
	Sigma          []float64  // P, static density
	RGB            *mat.Dense // P × 3, static color
	TransientSigma []float64  // P
	TransientRGB   *mat.Dense // P × 3
	TransientBeta  []float64  // P, uncertainty before the beta_min floor
}

// HasTransient reports whether transient values are present
func (o *Output) HasTransient() bool {
	return o.TransientSigma != nil
}

// CheckFinite returns ErrNonFinite naming the first ray with a NaN or Inf value
func (o *Output) CheckFinite(samplesPerRay int) error {
	check := func(name string, vals []float64, width int) error {
		for i, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(core.ErrNonFinite, "%s = %v at ray %d sample %d",
					name, v, i/width/samplesPerRay, (i/width)%samplesPerRay)
			}
		}
		return nil
	}
	if err := check("sigma", o.Sigma, 1); err != nil {
		return err
	}
	if err := check("rgb", o.RGB.RawMatrix().Data, 3); err != nil {
		return err
	}
	if !o.HasTransient() {
		return nil
	}
	if err := check("transient sigma", o.TransientSigma, 1); err != nil {
		return err
	}
	if err := check("transient rgb", o.TransientRGB.RawMatrix().Data, 3); err != nil {
		return err
	}
	return check("beta", o.TransientBeta, 1)
}

// Validate checks the query shape against the declared inputs
func (q *Query) Validate(in Inputs) error {
	if q.SamplesPerRay <= 0 {
		return errors.Wrapf(core.ErrInvalidConfig, "samples per ray %d", q.SamplesPerRay)
	}
	if _, c := q.Points.Dims(); c != 3 {
		return errors.Wrapf(core.ErrChannelMismatch, "points have %d columns, want 3", c)
	}
	if q.NumPoints() != q.NumRays()*q.SamplesPerRay {
		return errors.Wrapf(core.ErrChannelMismatch, "%d points for %d rays × %d samples",
			q.NumPoints(), q.NumRays(), q.SamplesPerRay)
	}
	codes := []struct {
		name string
		m    *mat.Dense
		want int
	}{
		{"appearance", q.Appearance, in.Appearance},
		{"outfit", q.Outfit, in.Outfit},
		{"time", q.Time, in.Time},
	}
	for _, c := range codes {
		got := 0
		if c.m != nil {
			r, w := c.m.Dims()
			if r != q.NumRays() {
				return errors.Wrapf(core.ErrCodeCount, "%s: %d codes for %d rays", c.name, r, q.NumRays())
			}
			got = w
		}
		if got != c.want {
			return errors.Wrapf(core.ErrChannelMismatch, "%s code width %d, model expects %d", c.name, got, c.want)
		}
	}
	return nil
}
