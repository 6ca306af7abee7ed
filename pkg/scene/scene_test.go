package scene

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/field"
)

func pointQuery(points []mgl64.Vec3) *field.Query {
	data := make([]float64, 0, 3*len(points))
	dirs := make([]float64, 0, 3*len(points))
	for _, p := range points {
		data = append(data, p[:]...)
		dirs = append(dirs, 0, 0, -1)
	}
	return &field.Query{
		Points:        mat.NewDense(len(points), 3, data),
		Directions:    mat.NewDense(len(points), 3, dirs),
		SamplesPerRay: 1,
	}
}

func TestFieldStaticDensity(t *testing.T) {
	s := &Scene{Static: []Blob{
		{Center: mgl64.Vec3{0, 0, 0}, Radius: 1, Density: 2, Color: mgl64.Vec3{1, 0, 0}},
		{Center: mgl64.Vec3{0.5, 0, 0}, Radius: 1, Density: 6, Color: mgl64.Vec3{0, 0, 1}},
	}}
	out, err := s.Field(field.Inputs{}, false).Query(pointQuery([]mgl64.Vec3{
		{-0.9, 0, 0}, // first blob only
		{0.25, 0, 0}, // overlap
		{5, 5, 5},    // empty space
	}))
	require.NoError(t, err)

	assert.Equal(t, []float64{2, 8, 0}, out.Sigma)
	assert.Equal(t, []float64{1, 0, 0}, out.RGB.RawRowView(0))
	assert.InDeltaSlice(t, []float64{0.25, 0, 0.75}, out.RGB.RawRowView(1), 1e-12)
	assert.Equal(t, []float64{0, 0, 0}, out.RGB.RawRowView(2))
	assert.False(t, out.HasTransient())
}

func TestFieldOutfitAndAppearance(t *testing.T) {
	s := &Scene{Static: []Blob{{
		Center: mgl64.Vec3{}, Radius: 1, Density: 1,
		Color: mgl64.Vec3{0.4, 0, 0}, Outfit: true, AltColor: mgl64.Vec3{0, 0, 0.4},
	}}}
	q := pointQuery([]mgl64.Vec3{{}, {}, {}})
	q.Outfit = mat.NewDense(3, 1, []float64{0, 1, 0.5})
	q.Appearance = mat.NewDense(3, 1, []float64{0, 0, 100})

	out, err := s.Field(field.Inputs{Appearance: 1, Outfit: 1}, false).Query(q)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.4, 0, 0}, out.RGB.RawRowView(0), 1e-12)
	assert.InDeltaSlice(t, []float64{0, 0, 0.4}, out.RGB.RawRowView(1), 1e-12)
	// tanh saturates, so brightness is scaled by 1.5
	assert.InDeltaSlice(t, []float64{0.3, 0, 0.3}, out.RGB.RawRowView(2), 1e-9)
}

func TestFieldTransient(t *testing.T) {
	s := &Scene{Transient: []Blob{{
		Center: mgl64.Vec3{}, Radius: 1, Density: 3, Color: mgl64.Vec3{0, 1, 0}, Beta: 2,
	}}}
	q := pointQuery([]mgl64.Vec3{{}, {}})
	q.Time = mat.NewDense(2, 1, []float64{1, -1})

	out, err := s.Field(field.Inputs{Time: 1}, true).Query(q)
	require.NoError(t, err)
	require.True(t, out.HasTransient())
	assert.Equal(t, []float64{0, 0}, out.Sigma)
	assert.Equal(t, []float64{3, 0}, out.TransientSigma)
	assert.Equal(t, []float64{2, 0}, out.TransientBeta)
	assert.Equal(t, []float64{0, 1, 0}, out.TransientRGB.RawRowView(0))

	q.SkipTransient = true
	out, err = s.Field(field.Inputs{Time: 1}, true).Query(q)
	require.NoError(t, err)
	assert.False(t, out.HasTransient())
}

func TestFieldRejectsMismatchedCodes(t *testing.T) {
	s := NewFogScene()
	q := pointQuery([]mgl64.Vec3{{}})
	q.Outfit = mat.NewDense(1, 2, nil)

	_, err := s.Field(field.Inputs{Outfit: 1}, false).Query(q)
	assert.ErrorIs(t, err, core.ErrChannelMismatch)
}

func TestBuiltinScenesValidate(t *testing.T) {
	for _, info := range builtinScenes {
		s, err := NewScene(info.ID)
		require.NoError(t, err)
		assert.NoError(t, s.Validate(), info.ID)
		assert.Equal(t, info, s.Info)
		assert.Greater(t, s.CameraConfig.Far, s.CameraConfig.Near)
	}
	_, err := NewScene("cornell-box")
	assert.Error(t, err)
}

func TestMergeCameraConfig(t *testing.T) {
	base := NewFogScene().CameraConfig
	merged := MergeCameraConfig(base, core.CameraConfig{Width: 8, Far: 9})
	assert.Equal(t, 8, merged.Width)
	assert.Equal(t, 9.0, merged.Far)
	assert.Equal(t, base.Height, merged.Height)
	assert.Equal(t, base.Center, merged.Center)

	s := NewFogScene(core.CameraConfig{Height: 10})
	assert.Equal(t, 10, s.CameraConfig.Height)
}

func TestSceneBounds(t *testing.T) {
	s := &Scene{
		Static:    []Blob{{Center: mgl64.Vec3{0, 0, 0}, Radius: 1, Density: 1}},
		Transient: []Blob{{Center: mgl64.Vec3{2, 0.5, 0}, Radius: 0.5, Density: 1}},
	}
	box := s.Bounds()
	assert.Equal(t, mgl64.Vec3{-1, -1, -1}, box.Min)
	assert.Equal(t, mgl64.Vec3{2.5, 1, 1}, box.Max)

	// A camera ray through the fog sphere is clipped to the sphere's box
	fog := NewFogScene()
	rays := core.FitRays(core.NewCamera(fog.CameraConfig).GetRays(), fog.Bounds())
	for _, r := range rays {
		require.GreaterOrEqual(t, r.Near, fog.CameraConfig.Near)
		require.LessOrEqual(t, r.Far, fog.CameraConfig.Far)
	}
}
