package scene

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// NewLandmarkScene creates a ground slab with a pillar, a figure whose clothing
// follows the outfit code and a passerby that only exists at positive time codes
func NewLandmarkScene(cameraOverrides ...core.CameraConfig) *Scene {
	cameraConfig := core.CameraConfig{
		Center: mgl64.Vec3{0, 1.2, 4},
		LookAt: mgl64.Vec3{0, 0.6, 0},
		Up:     mgl64.Vec3{0, 1, 0},
		Width:  160,
		Height: 120,
		VFov:   40,
		Near:   2,
		Far:    6,
	}
	if len(cameraOverrides) > 0 {
		cameraConfig = MergeCameraConfig(cameraConfig, cameraOverrides[0])
	}

	ground := mgl64.Vec3{0.45, 0.55, 0.3}
	stone := mgl64.Vec3{0.75, 0.7, 0.6}

	s := &Scene{
		Info:         builtinInfo("landmark"),
		CameraConfig: cameraConfig,
	}

	// large spheres sunk below y=0 approximate a flat ground
	s.Static = append(s.Static, Blob{Center: mgl64.Vec3{0, -50, 0}, Radius: 50, Density: 40, Color: ground})

	// pillar stacked from small spheres
	for i := 0; i < 6; i++ {
		s.Static = append(s.Static, Blob{
			Center:  mgl64.Vec3{-0.6, 0.15 + 0.25*float64(i), -0.3},
			Radius:  0.2,
			Density: 30,
			Color:   stone,
		})
	}

	// figure: head plus an outfit-colored torso
	s.Static = append(s.Static,
		Blob{Center: mgl64.Vec3{0.4, 1.0, 0}, Radius: 0.12, Density: 25, Color: mgl64.Vec3{0.9, 0.75, 0.6}},
		Blob{
			Center:   mgl64.Vec3{0.4, 0.55, 0},
			Radius:   0.3,
			Density:  25,
			Color:    mgl64.Vec3{0.8, 0.1, 0.1},
			Outfit:   true,
			AltColor: mgl64.Vec3{0.1, 0.2, 0.8},
		},
	)

	s.Transient = append(s.Transient, Blob{
		Center:  mgl64.Vec3{0, 0.5, 1},
		Radius:  0.35,
		Density: 15,
		Color:   mgl64.Vec3{0.2, 0.2, 0.2},
		Beta:    2,
	})
	return s
}

// NewFogScene creates a single translucent sphere of fog, useful for checking
// partial opacity
func NewFogScene(cameraOverrides ...core.CameraConfig) *Scene {
	cameraConfig := core.CameraConfig{
		Center: mgl64.Vec3{0, 0, 3},
		LookAt: mgl64.Vec3{0, 0, 0},
		Up:     mgl64.Vec3{0, 1, 0},
		Width:  64,
		Height: 64,
		VFov:   45,
		Near:   1,
		Far:    5,
	}
	if len(cameraOverrides) > 0 {
		cameraConfig = MergeCameraConfig(cameraConfig, cameraOverrides[0])
	}
	return &Scene{
		Info:         builtinInfo("fog"),
		CameraConfig: cameraConfig,
		Static: []Blob{
			{Center: mgl64.Vec3{0, 0, 0}, Radius: 1, Density: 0.8, Color: mgl64.Vec3{0.7, 0.8, 0.9}},
		},
	}
}

// NewBlobGridScene creates a grid of spheres with colors spread around the hue circle
func NewBlobGridScene(cameraOverrides ...core.CameraConfig) *Scene {
	const gridSize = 5
	const spacing = 0.5

	cameraConfig := core.CameraConfig{
		Center: mgl64.Vec3{0, 2.5, 3.5},
		LookAt: mgl64.Vec3{0, 0, 0},
		Up:     mgl64.Vec3{0, 1, 0},
		Width:  160,
		Height: 90,
		VFov:   40,
		Near:   2,
		Far:    7,
	}
	if len(cameraOverrides) > 0 {
		cameraConfig = MergeCameraConfig(cameraConfig, cameraOverrides[0])
	}

	s := &Scene{
		Info:         builtinInfo("blob-grid"),
		CameraConfig: cameraConfig,
	}
	offset := spacing * float64(gridSize-1) / 2
	for i := 0; i < gridSize; i++ {
		for j := 0; j < gridSize; j++ {
			hue := 360 * float64(i*gridSize+j) / float64(gridSize*gridSize)
			c := colorful.Hcl(hue, 0.6, 0.65).Clamped()
			s.Static = append(s.Static, Blob{
				Center:  mgl64.Vec3{float64(i)*spacing - offset, 0, float64(j)*spacing - offset},
				Radius:  0.18,
				Density: 50,
				Color:   mgl64.Vec3{c.R, c.G, c.B},
			})
		}
	}
	return s
}

// MergeCameraConfig applies the non-zero fields of override on top of base
func MergeCameraConfig(base, override core.CameraConfig) core.CameraConfig {
	result := base
	if override.Center != (mgl64.Vec3{}) {
		result.Center = override.Center
	}
	if override.LookAt != (mgl64.Vec3{}) {
		result.LookAt = override.LookAt
	}
	if override.Up != (mgl64.Vec3{}) {
		result.Up = override.Up
	}
	if override.Width > 0 {
		result.Width = override.Width
	}
	if override.Height > 0 {
		result.Height = override.Height
	}
	if override.VFov > 0 {
		result.VFov = override.VFov
	}
	if override.Near > 0 {
		result.Near = override.Near
	}
	if override.Far > 0 {
		result.Far = override.Far
	}
	return result
}

// NewScene creates a builtin scene by ID
func NewScene(id string, cameraOverrides ...core.CameraConfig) (*Scene, error) {
	switch id {
	case "landmark", "default":
		return NewLandmarkScene(cameraOverrides...), nil
	case "fog":
		return NewFogScene(cameraOverrides...), nil
	case "blob-grid":
		return NewBlobGridScene(cameraOverrides...), nil
	}
	return nil, errors.Errorf("unknown scene %q", id)
}

func builtinInfo(id string) SceneInfo {
	for _, info := range builtinScenes {
		if info.ID == id {
			return info
		}
	}
	return SceneInfo{ID: id, Name: titleCase(id), DisplayName: titleCase(id), Group: builtinGroup, Type: "builtin"}
}
