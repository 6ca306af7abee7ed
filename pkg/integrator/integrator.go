package integrator

import (
	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// Integrator renders a chunk of rays into named per-ray outputs.
// offset is the index of the chunk's first ray within the whole batch.
type Integrator interface {
	RenderRays(batch *core.RayBatch, offset int) (*Result, error)
	Layout() []FieldSpec
}

// Result keys
const (
	KeyRGBCoarse     = "rgb_coarse"
	KeyDepthCoarse   = "depth_coarse"
	KeyOpacityCoarse = "opacity_coarse"
	KeyWeightsCoarse = "weights_coarse"
	KeyZValsCoarse   = "z_vals_coarse"

	KeyRGBFine     = "rgb_fine"
	KeyDepthFine   = "depth_fine"
	KeyOpacityFine = "opacity_fine"
	KeyWeightsFine = "weights_fine"
	KeyZValsFine   = "z_vals_fine"

	KeyRGBFineStatic   = "rgb_fine_static"
	KeyDepthFineStatic = "depth_fine_static"

	KeyBeta               = "beta"
	KeyTransientSigmas    = "transient_sigmas"
	KeyRGBFineTransient   = "rgb_fine_transient"
	KeyDepthFineTransient = "depth_fine_transient"
)

// FieldSpec names one per-ray output and its width
type FieldSpec struct {
	Name  string
	Width int
}

// Result holds per-ray outputs keyed by name. Row i of every field belongs to ray i,
// and Keys always lists fields in the same order for a given configuration.
type Result struct {
	n      int
	keys   []string
	values map[string]*mat.Dense
}

// NewResult allocates zeroed outputs for n rays
func NewResult(n int, layout []FieldSpec) *Result {
	r := &Result{n: n, values: make(map[string]*mat.Dense, len(layout))}
	for _, f := range layout {
		r.keys = append(r.keys, f.Name)
		if n > 0 {
			r.values[f.Name] = mat.NewDense(n, f.Width, nil)
		}
	}
	return r
}

// Len returns the number of rays
func (r *Result) Len() int { return r.n }

// Keys returns the field names in layout order
func (r *Result) Keys() []string {
	return append([]string(nil), r.keys...)
}

// Has reports whether the field is present
func (r *Result) Has(key string) bool {
	_, ok := r.values[key]
	return ok
}

// Get returns the n×width matrix for key
func (r *Result) Get(key string) (*mat.Dense, bool) {
	m, ok := r.values[key]
	return m, ok
}

// Scalar returns a copy of a width-1 field as a slice, nil when absent
func (r *Result) Scalar(key string) []float64 {
	m, ok := r.values[key]
	if !ok {
		return nil
	}
	return mat.Col(make([]float64, r.n), 0, m)
}

// Vec3 returns row i of a width-3 field
func (r *Result) Vec3(key string, i int) mgl64.Vec3 {
	row := r.values[key].RawRowView(i)
	return mgl64.Vec3{row[0], row[1], row[2]}
}

// Colors returns a width-3 field as colors, nil when absent
func (r *Result) Colors(key string) []mgl64.Vec3 {
	if !r.Has(key) {
		return nil
	}
	out := make([]mgl64.Vec3, r.n)
	for i := range out {
		out[i] = r.Vec3(key, i)
	}
	return out
}

// PrimaryKind returns "fine" when a fine pass ran, else "coarse"
func (r *Result) PrimaryKind() string {
	if r.Has(KeyRGBFine) {
		return "fine"
	}
	return "coarse"
}

// CopyInto writes every field of r into dst starting at row offset
func (r *Result) CopyInto(dst *Result, offset int) {
	for _, k := range r.keys {
		src, ok := r.values[k]
		if !ok {
			continue
		}
		out := dst.values[k]
		for i := 0; i < r.n; i++ {
			copy(out.RawRowView(offset+i), src.RawRowView(i))
		}
	}
}

func (r *Result) set(key string, i int, vals ...float64) {
	copy(r.values[key].RawRowView(i), vals)
}
