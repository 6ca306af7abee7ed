package core

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestAABBClip(t *testing.T) {
	box := NewAABB(mgl64.Vec3{-1, -1, -1}, mgl64.Vec3{1, 1, 1})

	tests := []struct {
		name      string
		ray       Ray
		near, far float64
		hit       bool
	}{
		{"through center", NewRay(mgl64.Vec3{0, 0, 4}, mgl64.Vec3{0, 0, -1}, 2, 6), 3, 5, true},
		{"interval ends inside", NewRay(mgl64.Vec3{0, 0, 4}, mgl64.Vec3{0, 0, -1}, 2, 4), 3, 4, true},
		{"miss to the side", NewRay(mgl64.Vec3{2, 0, 4}, mgl64.Vec3{0, 0, -1}, 2, 6), 0, 0, false},
		{"box behind interval", NewRay(mgl64.Vec3{0, 0, 4}, mgl64.Vec3{0, 0, -1}, 0, 2), 0, 0, false},
		{"origin inside", NewRay(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{1, 0, 0}, 0, 6), 0, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			near, far, ok := box.Clip(tt.ray, tt.ray.Near, tt.ray.Far)
			if ok != tt.hit {
				t.Fatalf("Expected hit=%v, got %v", tt.hit, ok)
			}
			if !ok {
				return
			}
			if !mgl64.FloatEqualThreshold(near, tt.near, 1e-12) || !mgl64.FloatEqualThreshold(far, tt.far, 1e-12) {
				t.Errorf("Expected [%g, %g], got [%g, %g]", tt.near, tt.far, near, far)
			}
			if box.Hit(tt.ray, tt.ray.Near, tt.ray.Far) != tt.hit {
				t.Errorf("Hit disagrees with Clip")
			}
		})
	}
}

func TestAABBFromPointsAndSpheres(t *testing.T) {
	box := NewAABBFromPoints(mgl64.Vec3{1, -2, 0}, mgl64.Vec3{-1, 3, 0.5}, mgl64.Vec3{0, 0, -4})
	if box.Min != (mgl64.Vec3{-1, -2, -4}) || box.Max != (mgl64.Vec3{1, 3, 0.5}) {
		t.Errorf("Unexpected bounds %v - %v", box.Min, box.Max)
	}
	if !box.IsValid() {
		t.Error("Bounds of points should be valid")
	}

	union := NewAABBFromSphere(mgl64.Vec3{0, 0, 0}, 1).Union(NewAABBFromSphere(mgl64.Vec3{3, 0, 0}, 0.5))
	if union.Min != (mgl64.Vec3{-1, -1, -1}) || union.Max != (mgl64.Vec3{3.5, 1, 1}) {
		t.Errorf("Unexpected union %v - %v", union.Min, union.Max)
	}
	if c := union.Center(); c != (mgl64.Vec3{1.25, 0, 0}) {
		t.Errorf("Unexpected center %v", c)
	}
	if s := union.Expand(0.5).Size(); s != (mgl64.Vec3{5.5, 3, 3}) {
		t.Errorf("Unexpected expanded size %v", s)
	}
}

func TestFitRays(t *testing.T) {
	box := NewAABB(mgl64.Vec3{-1, -1, -1}, mgl64.Vec3{1, 1, 1})
	rays := []Ray{
		NewRay(mgl64.Vec3{0, 0, 4}, mgl64.Vec3{0, 0, -1}, 2, 6),
		NewRay(mgl64.Vec3{5, 0, 4}, mgl64.Vec3{0, 0, -1}, 2, 6),
	}

	fitted := FitRays(rays, box)
	if fitted[0].Near != 3 || fitted[0].Far != 5 {
		t.Errorf("Expected [3, 5] for the hit, got [%g, %g]", fitted[0].Near, fitted[0].Far)
	}
	if !fitted[1].Degenerate() || fitted[1].Near != 2 {
		t.Errorf("Expected a collapsed interval at near for the miss, got [%g, %g]", fitted[1].Near, fitted[1].Far)
	}
	if rays[0].Near != 2 || rays[0].Far != 6 {
		t.Error("FitRays must not modify its input")
	}
}
