package integrator

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/embedding"
	"github.com/df07/go-nerfw-renderer/pkg/field"
)

// Options controls sampling and compositing
type Options struct {
	NumCoarse       int     // stratified samples per ray
	NumFine         int     // importance samples per ray, 0 disables the fine pass
	Perturb         bool    // jitter samples inside their bins
	UseDisparity    bool    // stratify in inverse depth
	WhiteBackground bool    // composite over white instead of black
	NoiseStd        float64 // density noise added in static-only passes when perturbing
	BetaMin         float64 // floor added to the composited uncertainty
	Seed            uint64  // base seed of the per-ray random streams
}

// Models are the fields and conditioning channels a renderer queries
type Models struct {
	Coarse     field.Field
	Fine       field.Field // required when NumFine > 0
	Appearance embedding.Channel
	Outfit     embedding.Channel
	Time       embedding.Channel
}

// Hierarchical renders rays with a coarse stratified pass followed by an
// importance-sampled fine pass
type Hierarchical struct {
	opts         Options
	models       Models
	hasFinePass  bool
	hasTransient bool
	layout       []FieldSpec
}

// NewHierarchical validates the wiring between options, fields and channels
func NewHierarchical(opts Options, models Models) (*Hierarchical, error) {
	if models.Coarse == nil {
		return nil, errors.Wrap(core.ErrInvalidConfig, "coarse field is required")
	}
	if opts.NumCoarse < 1 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "num coarse samples %d", opts.NumCoarse)
	}
	if opts.NumFine < 0 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "num fine samples %d", opts.NumFine)
	}
	h := &Hierarchical{opts: opts, models: models, hasFinePass: opts.NumFine > 0}

	if models.Coarse.Transient() {
		return nil, errors.Wrap(core.ErrInvalidConfig, "transient modeling requires the fine model")
	}
	want := field.Inputs{Outfit: models.Outfit.Dim()}
	if got := models.Coarse.Inputs(); got != want {
		return nil, errors.Wrapf(core.ErrChannelMismatch, "coarse field expects codes %+v, channels provide %+v", got, want)
	}

	switch {
	case h.hasFinePass && models.Fine == nil:
		return nil, errors.Wrap(core.ErrInvalidConfig, "importance samples requested without a fine field")
	case !h.hasFinePass && models.Fine != nil:
		return nil, errors.Wrap(core.ErrInvalidConfig, "fine field given without importance samples")
	case h.hasFinePass && opts.NumCoarse < 3:
		return nil, errors.Wrapf(core.ErrInvalidConfig, "importance sampling needs at least 3 coarse samples, got %d", opts.NumCoarse)
	}

	if h.hasFinePass {
		h.hasTransient = models.Fine.Transient()
		want := field.Inputs{Appearance: models.Appearance.Dim(), Outfit: models.Outfit.Dim()}
		if h.hasTransient {
			want.Time = models.Time.Dim()
		}
		if got := models.Fine.Inputs(); got != want {
			return nil, errors.Wrapf(core.ErrChannelMismatch, "fine field expects codes %+v, channels provide %+v", got, want)
		}
	} else if models.Appearance.Enabled() {
		return nil, errors.Wrap(core.ErrInvalidConfig, "appearance codes condition the fine field, which is disabled")
	}
	if models.Time.Enabled() && !h.hasTransient {
		return nil, errors.Wrap(core.ErrInvalidConfig, "time codes condition the transient field, which is disabled")
	}
	if h.hasTransient && opts.BetaMin <= 0 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "beta_min %g must be positive", opts.BetaMin)
	}

	h.layout = h.buildLayout()
	return h, nil
}

// HasFinePass reports whether importance sampling runs
func (h *Hierarchical) HasFinePass() bool { return h.hasFinePass }

// HasTransient reports whether the fine pass models transient content
func (h *Hierarchical) HasTransient() bool { return h.hasTransient }

// Options returns the sampling options
func (h *Hierarchical) Options() Options { return h.opts }

// Layout lists the per-ray outputs this renderer produces
func (h *Hierarchical) Layout() []FieldSpec {
	return append([]FieldSpec(nil), h.layout...)
}

func (h *Hierarchical) buildLayout() []FieldSpec {
	nc := h.opts.NumCoarse
	layout := []FieldSpec{
		{KeyRGBCoarse, 3},
		{KeyDepthCoarse, 1},
		{KeyOpacityCoarse, 1},
		{KeyWeightsCoarse, nc},
		{KeyZValsCoarse, nc},
	}
	if !h.hasFinePass {
		return layout
	}
	nf := nc + h.opts.NumFine
	layout = append(layout,
		FieldSpec{KeyRGBFine, 3},
		FieldSpec{KeyDepthFine, 1},
		FieldSpec{KeyOpacityFine, 1},
		FieldSpec{KeyWeightsFine, nf},
		FieldSpec{KeyZValsFine, nf},
		FieldSpec{KeyRGBFineStatic, 3},
		FieldSpec{KeyDepthFineStatic, 1},
	)
	if h.hasTransient {
		layout = append(layout,
			FieldSpec{KeyBeta, 1},
			FieldSpec{KeyTransientSigmas, nf},
			FieldSpec{KeyRGBFineTransient, 3},
			FieldSpec{KeyDepthFineTransient, 1},
		)
	}
	return layout
}

// RenderRays renders one chunk. All sample points of a pass are evaluated in a
// single field query.
func (h *Hierarchical) RenderRays(batch *core.RayBatch, offset int) (*Result, error) {
	if err := batch.Validate(); err != nil {
		return nil, err
	}
	n := batch.Len()
	result := NewResult(n, h.layout)
	if n == 0 {
		return result, nil
	}

	codes, err := h.resolveCodes(batch)
	if err != nil {
		return nil, err
	}

	samplers := make([]core.Sampler, n)
	for i := range samplers {
		samplers[i] = core.NewRaySampler(h.opts.Seed, offset+i)
	}

	// coarse pass
	nc := h.opts.NumCoarse
	coarseT := make([][]float64, n)
	for i, r := range batch.Rays {
		if h.opts.UseDisparity && r.Near <= 0 {
			return nil, errors.Wrapf(core.ErrRayFormat, "ray %d: disparity sampling needs near > 0, got %g", offset+i, r.Near)
		}
		coarseT[i] = StratifiedSamples(r.Near, r.Far, nc, h.opts.Perturb, h.opts.UseDisparity, samplers[i])
	}
	q := buildQuery(batch.Rays, coarseT)
	q.Outfit = codes.outfit
	coarse, err := h.models.Coarse.Query(q)
	if err != nil {
		return nil, errors.Wrapf(err, "rays %d-%d coarse", offset, offset+n-1)
	}
	if err := coarse.CheckFinite(nc); err != nil {
		return nil, errors.Wrapf(err, "coarse pass, chunk at ray %d", offset)
	}

	coarseWeights := make([][]float64, n)
	for i, r := range batch.Rays {
		c := h.compositeStatic(r, coarseT[i], coarse, i, nc, samplers[i])
		coarseWeights[i] = c.Weights
		result.set(KeyRGBCoarse, i, c.RGB[:]...)
		result.set(KeyDepthCoarse, i, c.Depth)
		result.set(KeyOpacityCoarse, i, c.Opacity)
		result.set(KeyWeightsCoarse, i, c.Weights...)
		result.set(KeyZValsCoarse, i, coarseT[i]...)
	}
	if !h.hasFinePass {
		return result, nil
	}

	// fine pass
	nf := nc + h.opts.NumFine
	fineT := make([][]float64, n)
	for i, r := range batch.Rays {
		w := coarseWeights[i]
		extra := SamplePDF(Midpoints(coarseT[i]), w[1:nc-1], h.opts.NumFine, !h.opts.Perturb, samplers[i])
		fineT[i] = MergeSamples(coarseT[i], extra, r.Degenerate())
	}
	q = buildQuery(batch.Rays, fineT)
	q.Appearance, q.Outfit, q.Time = codes.appearance, codes.outfit, codes.time
	fine, err := h.models.Fine.Query(q)
	if err != nil {
		return nil, errors.Wrapf(err, "rays %d-%d fine", offset, offset+n-1)
	}
	if err := fine.CheckFinite(nf); err != nil {
		return nil, errors.Wrapf(err, "fine pass, chunk at ray %d", offset)
	}

	for i, r := range batch.Rays {
		if !h.hasTransient {
			c := h.compositeStatic(r, fineT[i], fine, i, nf, samplers[i])
			h.setFine(result, i, c, fineT[i])
			result.set(KeyRGBFineStatic, i, c.RGB[:]...)
			result.set(KeyDepthFineStatic, i, c.Depth)
			continue
		}
		h.compositeFineTransient(result, r, fineT[i], fine, i, nf)
	}
	return result, nil
}

func (h *Hierarchical) setFine(result *Result, i int, c Composited, t []float64) {
	result.set(KeyRGBFine, i, c.RGB[:]...)
	result.set(KeyDepthFine, i, c.Depth)
	result.set(KeyOpacityFine, i, c.Opacity)
	result.set(KeyWeightsFine, i, c.Weights...)
	result.set(KeyZValsFine, i, t...)
}

// compositeStatic integrates the static field of ray i. Density noise applies only
// while perturbing, as a training-time regularizer.
func (h *Hierarchical) compositeStatic(r core.Ray, t []float64, out *field.Output, i, k int, sampler core.Sampler) Composited {
	sigma := append([]float64(nil), out.Sigma[i*k:(i+1)*k]...)
	if h.opts.Perturb && h.opts.NoiseStd > 0 {
		for j := range sigma {
			sigma[j] += sampler.GetNormal() * h.opts.NoiseStd
		}
	}
	deltas := Deltas(t, r.Direction.Len(), r.Degenerate())
	return Composite(t, deltas, sigma, rowColors(out.RGB, i*k, k), h.opts.WhiteBackground)
}

func (h *Hierarchical) compositeFineTransient(result *Result, r core.Ray, t []float64, out *field.Output, i, k int) {
	lo, hi := i*k, (i+1)*k
	deltas := Deltas(t, r.Direction.Len(), r.Degenerate())
	colorS := rowColors(out.RGB, lo, k)
	colorT := rowColors(out.TransientRGB, lo, k)

	c := CompositeTransient(t, deltas, out.Sigma[lo:hi], colorS, out.TransientSigma[lo:hi], colorT,
		out.TransientBeta[lo:hi], h.opts.BetaMin, h.opts.WhiteBackground)
	h.setFine(result, i, c.Composited, t)
	result.set(KeyBeta, i, c.Beta)
	result.set(KeyTransientSigmas, i, out.TransientSigma[lo:hi]...)

	static := Composite(t, deltas, out.Sigma[lo:hi], colorS, h.opts.WhiteBackground)
	result.set(KeyRGBFineStatic, i, static.RGB[:]...)
	result.set(KeyDepthFineStatic, i, static.Depth)

	transient := Composite(t, deltas, out.TransientSigma[lo:hi], colorT, false)
	result.set(KeyRGBFineTransient, i, transient.RGB[:]...)
	result.set(KeyDepthFineTransient, i, transient.Depth)
}

type resolvedCodes struct {
	appearance, outfit, time *mat.Dense
}

func (h *Hierarchical) resolveCodes(batch *core.RayBatch) (resolvedCodes, error) {
	var codes resolvedCodes
	var err error
	n := batch.Len()

	if batch.Appearance.Len() > 0 && !h.models.Appearance.Enabled() {
		return codes, errors.Wrap(core.ErrCodeCount, "appearance codes given but the appearance channel is disabled")
	}
	if codes.outfit, err = h.models.Outfit.Resolve(batch.Outfits, n); err != nil {
		return codes, errors.Wrap(err, "outfit codes")
	}
	if !h.hasFinePass {
		return codes, nil
	}
	appearance := batch.Appearance
	if appearance.Len() == 0 {
		appearance = core.CodesFromIDs(batch.TS)
	}
	if codes.appearance, err = h.models.Appearance.Resolve(appearance, n); err != nil {
		return codes, errors.Wrap(err, "appearance codes")
	}
	if h.hasTransient {
		if codes.time, err = h.models.Time.Resolve(core.CodesFromIDs(batch.TS), n); err != nil {
			return codes, errors.Wrap(err, "time codes")
		}
	}
	return codes, nil
}

// buildQuery lays out the sample points of every ray, ray-major
func buildQuery(rays []core.Ray, t [][]float64) *field.Query {
	k := len(t[0])
	pts := mat.NewDense(len(rays)*k, 3, nil)
	dirs := mat.NewDense(len(rays), 3, nil)
	for i, r := range rays {
		dirs.SetRow(i, r.Direction[:])
		for j, tj := range t[i] {
			p := r.At(tj)
			pts.SetRow(i*k+j, p[:])
		}
	}
	return &field.Query{Points: pts, Directions: dirs, SamplesPerRay: k}
}

func rowColors(m *mat.Dense, lo, k int) []mgl64.Vec3 {
	colors := make([]mgl64.Vec3, k)
	for j := range colors {
		row := m.RawRowView(lo + j)
		colors[j] = mgl64.Vec3{row[0], row[1], row[2]}
	}
	return colors
}
