package core

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// Codes carries one conditioning code per ray, either as a table index or as a
// vector that was already looked up (or interpolated) by the caller.
// Exactly one of IDs and Vectors is set; both empty means no codes were supplied.
type Codes struct {
	IDs     []int
	Vectors [][]float64
}

// CodesFromIDs wraps per-ray table indices
func CodesFromIDs(ids []int) Codes {
	return Codes{IDs: ids}
}

// CodesFromVectors wraps per-ray pre-embedded vectors
func CodesFromVectors(vectors [][]float64) Codes {
	return Codes{Vectors: vectors}
}

// Len returns the number of codes
func (c Codes) Len() int {
	if c.Vectors != nil {
		return len(c.Vectors)
	}
	return len(c.IDs)
}

// Embedded reports whether the codes are already vectors
func (c Codes) Embedded() bool {
	return c.Vectors != nil
}

// Slice returns the codes for rays [lo, hi)
func (c Codes) Slice(lo, hi int) Codes {
	switch {
	case c.Vectors != nil:
		return Codes{Vectors: c.Vectors[lo:hi]}
	case c.IDs != nil:
		return Codes{IDs: c.IDs[lo:hi]}
	}
	return Codes{}
}

// RayBatch is an ordered batch of rays with their per-ray identities.
// Row i of every field belongs to ray i.
type RayBatch struct {
	Rays       []Ray
	TS         []int        // frame id per ray, selects the appearance code
	Outfits    Codes        // outfit id or outfit vector per ray
	Appearance Codes        // optional appearance vectors overriding the TS lookup
	RGBs       []mgl64.Vec3 // optional ground truth colors
}

// Len returns the number of rays
func (b *RayBatch) Len() int {
	return len(b.Rays)
}

// Slice returns a view of rays [lo, hi). The backing arrays are shared.
func (b *RayBatch) Slice(lo, hi int) *RayBatch {
	out := &RayBatch{
		Rays:       b.Rays[lo:hi],
		Outfits:    b.Outfits.Slice(lo, hi),
		Appearance: b.Appearance.Slice(lo, hi),
	}
	if b.TS != nil {
		out.TS = b.TS[lo:hi]
	}
	if b.RGBs != nil {
		out.RGBs = b.RGBs[lo:hi]
	}
	return out
}

// Validate checks every ray and that every per-ray field lines up with the rays.
// A single outfit code for a multi-ray batch is rejected rather than broadcast:
// codes are a per-ray contract.
func (b *RayBatch) Validate() error {
	n := len(b.Rays)
	for i, r := range b.Rays {
		if err := r.Validate(); err != nil {
			return errors.Wrapf(err, "ray %d", i)
		}
	}
	if b.TS != nil && len(b.TS) != n {
		return errors.Wrapf(ErrCodeCount, "%d frame ids for %d rays", len(b.TS), n)
	}
	if m := b.Outfits.Len(); m != 0 && m != n {
		if m == 1 {
			return errors.Wrapf(ErrCodeCount, "batch-level outfit code given for %d rays", n)
		}
		return errors.Wrapf(ErrCodeCount, "%d outfit codes for %d rays", m, n)
	}
	if m := b.Appearance.Len(); m != 0 && m != n {
		return errors.Wrapf(ErrCodeCount, "%d appearance codes for %d rays", m, n)
	}
	if b.RGBs != nil && len(b.RGBs) != n {
		return errors.Wrapf(ErrCodeCount, "%d target colors for %d rays", len(b.RGBs), n)
	}
	return nil
}
