package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// AABB represents an axis-aligned bounding box
type AABB struct {
	Min mgl64.Vec3 // Minimum corner
	Max mgl64.Vec3 // Maximum corner
}

// NewAABB creates a new AABB from min and max points
func NewAABB(min, max mgl64.Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// NewAABBFromPoints creates an AABB that bounds all given points
func NewAABBFromPoints(points ...mgl64.Vec3) AABB {
	if len(points) == 0 {
		return AABB{}
	}

	min := points[0]
	max := points[0]
	for _, point := range points[1:] {
		for axis := 0; axis < 3; axis++ {
			min[axis] = math.Min(min[axis], point[axis])
			max[axis] = math.Max(max[axis], point[axis])
		}
	}
	return AABB{Min: min, Max: max}
}

// NewAABBFromSphere bounds a sphere
func NewAABBFromSphere(center mgl64.Vec3, radius float64) AABB {
	r := mgl64.Vec3{radius, radius, radius}
	return AABB{Min: center.Sub(r), Max: center.Add(r)}
}

// Clip returns the part of [tMin, tMax] where the ray is inside the box, using
// the slab method. ok is false when the ray misses the box in that interval.
func (aabb AABB) Clip(ray Ray, tMin, tMax float64) (near, far float64, ok bool) {
	for axis := 0; axis < 3; axis++ {
		min, max := aabb.Min[axis], aabb.Max[axis]
		origin, direction := ray.Origin[axis], ray.Direction[axis]

		// Handle parallel rays (direction near zero)
		if math.Abs(direction) < 1e-8 {
			if origin < min || origin > max {
				return 0, 0, false // Ray origin outside slab
			}
			continue
		}

		invDirection := 1.0 / direction
		t1 := (min - origin) * invDirection
		t2 := (max - origin) * invDirection
		if t1 > t2 {
			t1, t2 = t2, t1
		}

		// Update overall intersection interval
		tMin = math.Max(tMin, t1)
		tMax = math.Min(tMax, t2)
		if tMin > tMax {
			return 0, 0, false
		}
	}
	return tMin, tMax, true
}

// Hit tests if a ray intersects with this AABB within [tMin, tMax]
func (aabb AABB) Hit(ray Ray, tMin, tMax float64) bool {
	_, _, ok := aabb.Clip(ray, tMin, tMax)
	return ok
}

// Union returns an AABB that bounds both this AABB and another
func (aabb AABB) Union(other AABB) AABB {
	return NewAABBFromPoints(aabb.Min, aabb.Max, other.Min, other.Max)
}

// Expand grows the box by margin on every side
func (aabb AABB) Expand(margin float64) AABB {
	m := mgl64.Vec3{margin, margin, margin}
	return AABB{Min: aabb.Min.Sub(m), Max: aabb.Max.Add(m)}
}

// Center returns the center point of the AABB
func (aabb AABB) Center() mgl64.Vec3 {
	return aabb.Min.Add(aabb.Max).Mul(0.5)
}

// Size returns the size (extent) of the AABB along each axis
func (aabb AABB) Size() mgl64.Vec3 {
	return aabb.Max.Sub(aabb.Min)
}

// IsValid checks if the AABB is valid (min <= max for all axes)
func (aabb AABB) IsValid() bool {
	return aabb.Min[0] <= aabb.Max[0] && aabb.Min[1] <= aabb.Max[1] && aabb.Min[2] <= aabb.Max[2]
}

// FitRays tightens each ray's [Near, Far] to the part inside the box. Rays that
// miss the box collapse to Far == Near and render as empty space.
func FitRays(rays []Ray, box AABB) []Ray {
	out := make([]Ray, len(rays))
	for i, r := range rays {
		near, far, ok := box.Clip(r, r.Near, r.Far)
		if !ok {
			near, far = r.Near, r.Near
		}
		r.Near, r.Far = near, far
		out[i] = r
	}
	return out
}
