package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// RayWidth is the number of columns in a packed ray row:
// origin (3), direction (3), near, far.
const RayWidth = 8

// Ray represents a camera ray with its integration bounds
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
	Near      float64
	Far       float64
}

// NewRay creates a new ray
func NewRay(origin, direction mgl64.Vec3, near, far float64) Ray {
	return Ray{Origin: origin, Direction: direction, Near: near, Far: far}
}

// At returns the point at parameter t along the ray
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}

// Degenerate reports whether the integration interval has zero length
func (r Ray) Degenerate() bool {
	return r.Far <= r.Near
}

// Row packs the ray into the 8-column layout used by batch records
func (r Ray) Row() []float64 {
	return []float64{
		r.Origin[0], r.Origin[1], r.Origin[2],
		r.Direction[0], r.Direction[1], r.Direction[2],
		r.Near, r.Far,
	}
}

// ParseRay unpacks an 8-column row
func ParseRay(row []float64) (Ray, error) {
	if len(row) != RayWidth {
		return Ray{}, errors.Wrapf(ErrRayFormat, "row has %d columns, want %d", len(row), RayWidth)
	}
	r := Ray{
		Origin:    mgl64.Vec3{row[0], row[1], row[2]},
		Direction: mgl64.Vec3{row[3], row[4], row[5]},
		Near:      row[6],
		Far:       row[7],
	}
	if err := r.Validate(); err != nil {
		return Ray{}, err
	}
	return r, nil
}

// Validate rejects non-finite components and intervals that end before they start.
// Far == Near is a valid empty interval.
func (r Ray) Validate() error {
	for _, v := range r.Row() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrRayFormat, "non-finite component in %v", r.Row())
		}
	}
	if r.Far < r.Near {
		return errors.Wrapf(ErrRayFormat, "far %g is before near %g", r.Far, r.Near)
	}
	return nil
}

// ParseRays unpacks N×8 rows, preserving order
func ParseRays(rows [][]float64) ([]Ray, error) {
	rays := make([]Ray, len(rows))
	for i, row := range rows {
		r, err := ParseRay(row)
		if err != nil {
			return nil, errors.Wrapf(err, "ray %d", i)
		}
		rays[i] = r
	}
	return rays, nil
}
