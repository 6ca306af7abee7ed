package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// CameraConfig describes a pinhole camera and the depth range of its rays
type CameraConfig struct {
	Center mgl64.Vec3 // camera position
	LookAt mgl64.Vec3 // point the camera faces
	Up     mgl64.Vec3
	Width  int     // image width in pixels
	Height int     // image height in pixels
	VFov   float64 // vertical field of view in degrees
	Near   float64
	Far    float64
}

// Camera generates one ray per pixel in row-major order
type Camera struct {
	config          CameraConfig
	lowerLeftCorner mgl64.Vec3
	horizontal      mgl64.Vec3
	vertical        mgl64.Vec3
}

// NewCamera creates a camera from its configuration
func NewCamera(config CameraConfig) *Camera {
	aspectRatio := float64(config.Width) / float64(config.Height)
	viewportHeight := 2.0 * math.Tan(mgl64.DegToRad(config.VFov)/2)
	viewportWidth := aspectRatio * viewportHeight

	// orthonormal basis, w points backwards
	w := config.Center.Sub(config.LookAt).Normalize()
	u := config.Up.Cross(w).Normalize()
	v := w.Cross(u)

	horizontal := u.Mul(viewportWidth)
	vertical := v.Mul(viewportHeight)
	lowerLeftCorner := config.Center.
		Sub(horizontal.Mul(0.5)).
		Sub(vertical.Mul(0.5)).
		Sub(w)

	return &Camera{
		config:          config,
		lowerLeftCorner: lowerLeftCorner,
		horizontal:      horizontal,
		vertical:        vertical,
	}
}

// Config returns the camera configuration
func (c *Camera) Config() CameraConfig {
	return c.config
}

// GetRay returns the ray through the center of pixel (i, j), j counted from the top.
// Directions are unit length so t is a world-space distance.
func (c *Camera) GetRay(i, j int) Ray {
	s := (float64(i) + 0.5) / float64(c.config.Width)
	t := 1 - (float64(j)+0.5)/float64(c.config.Height)
	direction := c.lowerLeftCorner.
		Add(c.horizontal.Mul(s)).
		Add(c.vertical.Mul(t)).
		Sub(c.config.Center).
		Normalize()
	return NewRay(c.config.Center, direction, c.config.Near, c.config.Far)
}

// GetRays returns every pixel's ray, row-major from the top-left pixel
func (c *Camera) GetRays() []Ray {
	rays := make([]Ray, 0, c.config.Width*c.config.Height)
	for j := 0; j < c.config.Height; j++ {
		for i := 0; i < c.config.Width; i++ {
			rays = append(rays, c.GetRay(i, j))
		}
	}
	return rays
}

// OrbitCamera places a camera on a circle of the given radius around target,
// at azimuth degrees, looking at target
func OrbitCamera(base CameraConfig, target mgl64.Vec3, radius, height, azimuth float64) CameraConfig {
	a := mgl64.DegToRad(azimuth)
	base.Center = target.Add(mgl64.Vec3{radius * math.Sin(a), height, radius * math.Cos(a)})
	base.LookAt = target
	return base
}

// Orbit turns the camera by degrees around the vertical axis through LookAt,
// keeping its distance and height
func (c CameraConfig) Orbit(degrees float64) CameraConfig {
	offset := c.Center.Sub(c.LookAt)
	radius := math.Hypot(offset[0], offset[2])
	start := mgl64.RadToDeg(math.Atan2(offset[0], offset[2]))
	return OrbitCamera(c, c.LookAt, radius, offset[1], start+degrees)
}
