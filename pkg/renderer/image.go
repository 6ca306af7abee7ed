package renderer

import (
	"image"
	"image/color"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
)

// depthColormap runs from near (dark blue) to far (dark red), like a jet map
var depthColormap = []colorful.Color{
	{R: 0, G: 0, B: 0.5},
	{R: 0, G: 0.3, B: 1},
	{R: 0, G: 0.9, B: 0.9},
	{R: 0.9, G: 0.9, B: 0},
	{R: 1, G: 0.3, B: 0},
	{R: 0.5, G: 0, B: 0},
}

// ImageFromResult turns a width-3 color field into a width×height image, rays
// in row-major order
func ImageFromResult(result *integrator.Result, key string, width, height int) (*image.RGBA, error) {
	if err := checkImageShape(result, key, 3, width, height); err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, c := range result.Colors(key) {
		img.SetRGBA(i%width, i/width, vec3ToColor(c))
	}
	return img, nil
}

// DepthImage colormaps a width-1 depth field. Depths are normalized to the range
// of the image itself, so the map shows relative depth.
func DepthImage(result *integrator.Result, key string, width, height int) (*image.RGBA, error) {
	if err := checkImageShape(result, key, 1, width, height); err != nil {
		return nil, err
	}
	depth := result.Scalar(key)
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, d := range depth {
		lo, hi = math.Min(lo, d), math.Max(hi, d)
	}
	scale := 0.0
	if hi > lo {
		scale = 1 / (hi - lo)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, d := range depth {
		r, g, b := colormap((d - lo) * scale).RGB255()
		img.SetRGBA(i%width, i/width, color.RGBA{R: r, G: g, B: b, A: 255})
	}
	return img, nil
}

// colormap blends between neighboring colormap stops in Lab space
func colormap(v float64) colorful.Color {
	v = mgl64.Clamp(v, 0, 1) * float64(len(depthColormap)-1)
	i := min(int(v), len(depthColormap)-2)
	return depthColormap[i].BlendLab(depthColormap[i+1], v-float64(i)).Clamped()
}

// Upscale enlarges an image by an integer factor without smoothing
func Upscale(img image.Image, factor int) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	return out
}

// SideBySide places images left to right, top aligned
func SideBySide(images ...image.Image) *image.RGBA {
	width, height := 0, 0
	for _, img := range images {
		width += img.Bounds().Dx()
		height = max(height, img.Bounds().Dy())
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	x := 0
	for _, img := range images {
		b := img.Bounds()
		draw.Draw(out, image.Rect(x, 0, x+b.Dx(), b.Dy()), img, b.Min, draw.Src)
		x += b.Dx()
	}
	return out
}

// TargetImage turns target colors into an image
func TargetImage(colors []mgl64.Vec3, width, height int) (*image.RGBA, error) {
	if len(colors) != width*height {
		return nil, errors.Wrapf(core.ErrChannelMismatch, "%d colors for a %dx%d image", len(colors), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, c := range colors {
		img.SetRGBA(i%width, i/width, vec3ToColor(c))
	}
	return img, nil
}

func checkImageShape(result *integrator.Result, key string, channels, width, height int) error {
	m, ok := result.Get(key)
	if !ok {
		return errors.Errorf("result has no %q output", key)
	}
	if _, c := m.Dims(); c != channels {
		return errors.Wrapf(core.ErrChannelMismatch, "%s has %d channels, want %d", key, c, channels)
	}
	if result.Len() != width*height {
		return errors.Wrapf(core.ErrChannelMismatch, "%d rays for a %dx%d image", result.Len(), width, height)
	}
	return nil
}

// vec3ToColor converts a color in [0,1] to RGBA with clamping. Radiance field
// colors are already display-referred, so no gamma is applied.
func vec3ToColor(c mgl64.Vec3) color.RGBA {
	return color.RGBA{
		R: uint8(math.Round(255 * mgl64.Clamp(c[0], 0, 1))),
		G: uint8(math.Round(255 * mgl64.Clamp(c[1], 0, 1))),
		B: uint8(math.Round(255 * mgl64.Clamp(c[2], 0, 1))),
		A: 255,
	}
}
