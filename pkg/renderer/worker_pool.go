package renderer

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
)

// ChunkTask represents a chunk rendering task for the worker pool
type ChunkTask struct {
	Chunk  Chunk
	Batch  *core.RayBatch // whole batch, workers render Batch[Chunk.Lo:Chunk.Hi]
	TaskID int            // For deterministic ordering
}

// ChunkResult contains the result from rendering a chunk
type ChunkResult struct {
	TaskID int
	Chunk  Chunk
	Result *integrator.Result
	Stats  ChunkStats
	Error  error
}

// WorkerPool manages parallel chunk rendering
type WorkerPool struct {
	taskQueue   chan ChunkTask
	resultQueue chan ChunkResult
	workers     []*Worker
	numWorkers  int
	wg          sync.WaitGroup
	stopOnce    sync.Once
	cancel      context.CancelFunc
}

// Worker renders chunks with a shared, read-only integrator
type Worker struct {
	ID          int
	integrator  integrator.Integrator
	taskQueue   chan ChunkTask
	resultQueue chan ChunkResult
	pool        *WorkerPool // Reference to parent pool for cancellation
}

// NewWorkerPool creates a worker pool able to hold maxChunks tasks without blocking.
// numWorkers <= 0 uses one worker per CPU.
func NewWorkerPool(integ integrator.Integrator, maxChunks, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	wp := &WorkerPool{
		taskQueue:   make(chan ChunkTask, maxChunks),
		resultQueue: make(chan ChunkResult, maxChunks),
		numWorkers:  numWorkers,
	}
	for i := 0; i < numWorkers; i++ {
		wp.workers = append(wp.workers, &Worker{
			ID:          i,
			integrator:  integ,
			taskQueue:   wp.taskQueue,
			resultQueue: wp.resultQueue,
			pool:        wp,
		})
	}
	return wp
}

// Start begins all workers. Once ctx is done or any chunk fails, the remaining
// tasks are skipped with a cancellation error.
func (wp *WorkerPool) Start(ctx context.Context) {
	ctx, wp.cancel = context.WithCancel(ctx)
	for _, worker := range wp.workers {
		wp.wg.Add(1)
		go worker.run(ctx, &wp.wg)
	}
}

// Stop gracefully shuts down all workers
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.taskQueue) // No more tasks
		wp.wg.Wait()        // Wait for workers to finish
		close(wp.resultQueue)
		if wp.cancel != nil {
			wp.cancel()
		}
	})
}

// SubmitTask submits a chunk task to the worker pool
func (wp *WorkerPool) SubmitTask(task ChunkTask) {
	wp.taskQueue <- task
}

// GetResult retrieves a completed chunk result
func (wp *WorkerPool) GetResult() (ChunkResult, bool) {
	result, ok := <-wp.resultQueue
	return result, ok
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// run is the main worker loop
func (w *Worker) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range w.taskQueue {
		result := ChunkResult{TaskID: task.TaskID, Chunk: task.Chunk}
		if err := ctx.Err(); err != nil {
			result.Error = err
			w.resultQueue <- result
			continue
		}

		start := time.Now()
		chunk := task.Batch.Slice(task.Chunk.Lo, task.Chunk.Hi)
		result.Result, result.Error = w.integrator.RenderRays(chunk, task.Chunk.Lo)
		if result.Error != nil {
			w.pool.cancel()
		}
		result.Stats = ChunkStats{
			Rays:     task.Chunk.Len(),
			Points:   countPoints(result.Result),
			Duration: time.Since(start),
		}
		w.resultQueue <- result
	}
}

// countPoints returns the number of field evaluations behind a chunk result
func countPoints(r *integrator.Result) int {
	if r == nil {
		return 0
	}
	points := 0
	for _, key := range []string{integrator.KeyZValsCoarse, integrator.KeyZValsFine} {
		if m, ok := r.Get(key); ok {
			rows, cols := m.Dims()
			points += rows * cols
		}
	}
	return points
}
