package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/field"
)

// Blob is a sphere of constant density and color
type Blob struct {
	Center  mgl64.Vec3 `yaml:"center"`
	Radius  float64    `yaml:"radius"`
	Density float64    `yaml:"density"`
	Color   mgl64.Vec3 `yaml:"color"`

	// Outfit blobs blend from Color to AltColor as the first outfit code component goes from 0 to 1
	Outfit   bool       `yaml:"outfit,omitempty"`
	AltColor mgl64.Vec3 `yaml:"alt_color,omitempty"`

	// Beta is the uncertainty a transient blob reports inside its volume
	Beta float64 `yaml:"beta,omitempty"`
}

// Contains reports whether p lies inside the blob
func (b Blob) Contains(p mgl64.Vec3) bool {
	return p.Sub(b.Center).LenSqr() < b.Radius*b.Radius
}

// Scene is an analytic volume used to exercise the renderer without trained weights
type Scene struct {
	Info         SceneInfo
	CameraConfig core.CameraConfig
	Static       []Blob
	Transient    []Blob // blobs present only when the first time code component is positive
}

// Validate checks blob parameters
func (s *Scene) Validate() error {
	check := func(kind string, blobs []Blob) error {
		for i, b := range blobs {
			if b.Radius <= 0 {
				return errors.Wrapf(core.ErrInvalidConfig, "%s blob %d: radius %v", kind, i, b.Radius)
			}
			if b.Density < 0 {
				return errors.Wrapf(core.ErrInvalidConfig, "%s blob %d: density %v", kind, i, b.Density)
			}
		}
		return nil
	}
	if err := check("static", s.Static); err != nil {
		return err
	}
	return check("transient", s.Transient)
}

// Bounds returns a box around every static and transient blob
func (s *Scene) Bounds() core.AABB {
	var box core.AABB
	for i, b := range append(append([]Blob{}, s.Static...), s.Transient...) {
		blobBox := core.NewAABBFromSphere(b.Center, b.Radius)
		if i == 0 {
			box = blobBox
			continue
		}
		box = box.Union(blobBox)
	}
	return box
}

// Field returns a view of the scene as a radiance field consuming the given codes.
// Appearance codes scale brightness, outfit codes recolor outfit blobs and time
// codes toggle the transient blobs.
func (s *Scene) Field(inputs field.Inputs, transient bool) *Field {
	return &Field{scene: s, inputs: inputs, transient: transient}
}

// Field evaluates a Scene at sample points
type Field struct {
	scene     *Scene
	inputs    field.Inputs
	transient bool
}

func (f *Field) Inputs() field.Inputs { return f.inputs }

func (f *Field) Transient() bool { return f.transient }

// Query evaluates density and color at every point
func (f *Field) Query(q *field.Query) (*field.Output, error) {
	if err := q.Validate(f.inputs); err != nil {
		return nil, errors.Wrapf(err, "scene %q", f.scene.Info.ID)
	}
	n := q.NumPoints()
	withTransient := f.transient && !q.SkipTransient

	out := &field.Output{
		Sigma: make([]float64, n),
		RGB:   newRows(n),
	}
	if withTransient {
		out.TransientSigma = make([]float64, n)
		out.TransientRGB = newRows(n)
		out.TransientBeta = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		ray := i / q.SamplesPerRay
		row := q.Points.RawRowView(i)
		p := mgl64.Vec3{row[0], row[1], row[2]}

		sigma, color := f.mix(f.scene.Static, p, ray, q)
		out.Sigma[i] = sigma
		copy(out.RGB.RawRowView(i), color[:])

		if !withTransient || !f.transientVisible(ray, q) {
			continue
		}
		tSigma, tColor := f.mix(f.scene.Transient, p, ray, q)
		out.TransientSigma[i] = tSigma
		copy(out.TransientRGB.RawRowView(i), tColor[:])
		for _, b := range f.scene.Transient {
			if b.Contains(p) {
				out.TransientBeta[i] += b.Beta
			}
		}
	}
	return out, nil
}

// mix sums blob densities at p and returns their density-weighted color
func (f *Field) mix(blobs []Blob, p mgl64.Vec3, ray int, q *field.Query) (float64, mgl64.Vec3) {
	var sigma float64
	var color mgl64.Vec3
	for _, b := range blobs {
		if !b.Contains(p) {
			continue
		}
		c := b.Color
		if b.Outfit && f.inputs.Outfit > 0 {
			t := mgl64.Clamp(q.Outfit.At(ray, 0), 0, 1)
			c = c.Mul(1 - t).Add(b.AltColor.Mul(t))
		}
		sigma += b.Density
		color = color.Add(c.Mul(b.Density))
	}
	if sigma > 0 {
		color = color.Mul(1 / sigma)
	}
	if f.inputs.Appearance > 0 {
		scale := 1 + 0.5*math.Tanh(q.Appearance.At(ray, 0))
		color = clampColor(color.Mul(scale))
	}
	return sigma, color
}

func (f *Field) transientVisible(ray int, q *field.Query) bool {
	if f.inputs.Time == 0 {
		return true
	}
	return q.Time.At(ray, 0) > 0
}

func newRows(n int) *mat.Dense {
	if n == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(n, 3, nil)
}

func clampColor(c mgl64.Vec3) mgl64.Vec3 {
	return mgl64.Vec3{mgl64.Clamp(c[0], 0, 1), mgl64.Clamp(c[1], 0, 1), mgl64.Clamp(c[2], 0, 1)}
}
