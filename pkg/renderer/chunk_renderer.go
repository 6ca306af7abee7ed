// Package renderer drives an integrator over whole ray batches and turns the
// results into images.
package renderer

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
)

// ChunkConfig contains configuration for chunked rendering
type ChunkConfig struct {
	ChunkSize  int // Rays per chunk
	NumWorkers int // Number of parallel workers (0 = use CPU count)
}

// DefaultChunkConfig returns sequential rendering in chunks of 32k rays
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:  32 * 1024,
		NumWorkers: 1,
	}
}

// ChunkCompletion describes a finished chunk for progress callbacks
type ChunkCompletion struct {
	Chunk       Chunk
	Stats       ChunkStats
	ChunkNumber int // Completed chunks so far (1-based)
	TotalChunks int
}

// ChunkRenderer renders batches of rays chunk by chunk into pre-sized outputs
type ChunkRenderer struct {
	integrator integrator.Integrator
	config     ChunkConfig
	logger     core.Logger
}

// NewChunkRenderer creates a renderer around a configured integrator
func NewChunkRenderer(integ integrator.Integrator, config ChunkConfig, logger core.Logger) (*ChunkRenderer, error) {
	if config.ChunkSize < 1 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "chunk size %d", config.ChunkSize)
	}
	if config.NumWorkers < 0 {
		return nil, errors.Wrapf(core.ErrInvalidConfig, "workers %d", config.NumWorkers)
	}
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &ChunkRenderer{integrator: integ, config: config, logger: logger}, nil
}

// Config returns the chunking configuration
func (r *ChunkRenderer) Config() ChunkConfig {
	return r.config
}

// Layout lists the per-ray outputs of every render
func (r *ChunkRenderer) Layout() []integrator.FieldSpec {
	return r.integrator.Layout()
}

// Render renders every ray of the batch. Row i of the result always belongs to ray i.
func (r *ChunkRenderer) Render(ctx context.Context, batch *core.RayBatch) (*integrator.Result, RenderStats, error) {
	return r.RenderWithProgress(ctx, batch, nil)
}

// RenderWithProgress renders like Render and calls onChunk from the calling goroutine
// as chunks complete. The first failing chunk, in batch order, aborts the batch.
func (r *ChunkRenderer) RenderWithProgress(ctx context.Context, batch *core.RayBatch, onChunk func(ChunkCompletion)) (*integrator.Result, RenderStats, error) {
	start := time.Now()
	if err := batch.Validate(); err != nil {
		return nil, RenderStats{}, err
	}

	n := batch.Len()
	out := integrator.NewResult(n, r.integrator.Layout())
	chunks := NewChunkGrid(n, r.config.ChunkSize)
	if len(chunks) == 0 {
		return out, RenderStats{}, nil
	}

	pool := NewWorkerPool(r.integrator, len(chunks), r.config.NumWorkers)
	workers := min(pool.GetNumWorkers(), len(chunks))
	stats := RenderStats{TotalChunks: len(chunks), Workers: workers}
	r.logger.Debugf("rendering %d rays in %d chunks of %d using %d workers",
		n, len(chunks), r.config.ChunkSize, workers)

	pool.Start(ctx)
	defer pool.Stop()
	for i, chunk := range chunks {
		pool.SubmitTask(ChunkTask{Chunk: chunk, Batch: batch, TaskID: i})
	}

	var firstErr, cancelErr error
	firstFailed := len(chunks)
	for i := 0; i < len(chunks); i++ {
		result, ok := pool.GetResult()
		if !ok {
			return nil, RenderStats{}, errors.New("worker pool closed unexpectedly")
		}
		if result.Error != nil {
			if isCancellation(result.Error) {
				cancelErr = result.Error
			} else if result.TaskID < firstFailed {
				firstFailed, firstErr = result.TaskID, result.Error
			}
			continue
		}

		result.Result.CopyInto(out, result.Chunk.Lo)
		stats.add(result.Stats)
		r.logger.Debugf("chunk %d/%d: rays %d-%d, %d points in %v",
			i+1, len(chunks), result.Chunk.Lo, result.Chunk.Hi-1, result.Stats.Points, result.Stats.Duration)
		if onChunk != nil {
			onChunk(ChunkCompletion{
				Chunk:       result.Chunk,
				Stats:       result.Stats,
				ChunkNumber: i + 1,
				TotalChunks: len(chunks),
			})
		}
	}

	if firstErr != nil {
		return nil, RenderStats{}, errors.Wrapf(firstErr, "chunk %d (rays %d-%d)",
			firstFailed, chunks[firstFailed].Lo, chunks[firstFailed].Hi-1)
	}
	if cancelErr != nil {
		return nil, RenderStats{}, cancelErr
	}

	stats.Duration = time.Since(start)
	r.logger.Infof("rendered %d rays (%d points) in %v, %.0f rays/s",
		stats.TotalRays, stats.TotalPoints, stats.Duration, stats.RaysPerSecond())
	return out, stats, nil
}

// isCancellation reports whether a chunk was skipped rather than failed
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
