package renderer

import (
	"github.com/df07/go-nerfw-renderer/pkg/config"
	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/embedding"
	"github.com/df07/go-nerfw-renderer/pkg/field"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
	"github.com/df07/go-nerfw-renderer/pkg/scene"
)

// SceneView conditions an analytic scene render
type SceneView struct {
	Appearance float64 // brightness code, 0 leaves colors untouched
	Outfit     float64 // 0 renders base outfit colors, 1 the alternates
	Transient  bool    // render transient blobs through the transient head
}

// NewSceneIntegrator wires an analytic scene into the hierarchical renderer with
// the sampling options of cfg. The view is stored as row 0 of one-row code
// tables, so batches from ViewBatch(rays, 0, 0) render it.
func NewSceneIntegrator(s *scene.Scene, cfg config.Config, view SceneView) (*integrator.Hierarchical, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	outfit, err := singleCode("outfit", view.Outfit)
	if err != nil {
		return nil, err
	}
	models := integrator.Models{
		Coarse: s.Field(field.Inputs{Outfit: 1}, false),
		Outfit: outfit,
	}

	opts := samplingOptions(cfg)
	if cfg.HasFinePass() {
		if models.Appearance, err = singleCode("appearance", view.Appearance); err != nil {
			return nil, err
		}
		inputs := field.Inputs{Appearance: 1, Outfit: 1}
		if view.Transient {
			if models.Time, err = singleCode("time", 1); err != nil {
				return nil, err
			}
			inputs.Time = 1
			if opts.BetaMin <= 0 {
				opts.BetaMin = config.Default().BetaMin
			}
		}
		models.Fine = s.Field(inputs, view.Transient)
	}
	return integrator.NewHierarchical(opts, models)
}

func singleCode(name string, v float64) (embedding.Channel, error) {
	table, err := embedding.NewTableFromRows(name, [][]float64{{v}})
	if err != nil {
		return embedding.Disabled(), err
	}
	return embedding.Enabled(table), nil
}

// ViewBatch conditions every ray on the same frame and outfit ids
func ViewBatch(rays []core.Ray, frame, outfit int) *core.RayBatch {
	batch := &core.RayBatch{Rays: rays, TS: make([]int, len(rays))}
	outfits := make([]int, len(rays))
	for i := range rays {
		batch.TS[i] = frame
		outfits[i] = outfit
	}
	batch.Outfits = core.CodesFromIDs(outfits)
	return batch
}
