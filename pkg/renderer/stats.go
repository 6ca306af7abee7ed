package renderer

import "time"

// RenderStats contains statistics about the rendering of a batch
type RenderStats struct {
	TotalRays   int           // Rays rendered
	TotalChunks int           // Chunks the batch was split into
	TotalPoints int           // Field evaluations across both passes
	Workers     int           // Workers used
	Duration    time.Duration // Wall-clock time
}

// RaysPerSecond returns the throughput of the batch
func (s RenderStats) RaysPerSecond() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.TotalRays) / s.Duration.Seconds()
}

// ChunkStats tracks the work done for a single chunk
type ChunkStats struct {
	Rays     int
	Points   int
	Duration time.Duration
}

// add accumulates a chunk into the batch totals
func (s *RenderStats) add(c ChunkStats) {
	s.TotalRays += c.Rays
	s.TotalPoints += c.Points
}
