package loaders

import (
	"image"
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

// ImageData is a decoded image as row-major colors in [0,1]
type ImageData struct {
	Width  int
	Height int
	Pixels []mgl64.Vec3
}

// LoadImage loads a PNG or JPEG image as target colors
func LoadImage(filename string) (*ImageData, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open image file")
	}
	defer file.Close()

	// Decode image (auto-detects PNG/JPEG from file header)
	img, _, err := image.Decode(file)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode image")
	}
	return FromImage(img), nil
}

// FromImage converts a decoded image, ignoring alpha
func FromImage(img image.Image) *ImageData {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	pixels := make([]mgl64.Vec3, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(x+bounds.Min.X, y+bounds.Min.Y).RGBA()
			// RGBA returns uint32 in [0, 65535], convert to [0, 1]
			pixels[y*width+x] = mgl64.Vec3{
				float64(r) / 65535.0,
				float64(g) / 65535.0,
				float64(b) / 65535.0,
			}
		}
	}
	return &ImageData{Width: width, Height: height, Pixels: pixels}
}
