package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/pkg/errors"

	"github.com/df07/go-nerfw-renderer/pkg/core"
	"github.com/df07/go-nerfw-renderer/pkg/integrator"
	"github.com/df07/go-nerfw-renderer/pkg/renderer"
)

// DefaultChunkSize is the number of rays per chunk for web renders. Small
// chunks keep progress events frequent.
const DefaultChunkSize = 1024

// ChunkUpdate represents a finished chunk sent via SSE
type ChunkUpdate struct {
	FirstRay    int     `json:"firstRay"`
	LastRay     int     `json:"lastRay"`
	ChunkNumber int     `json:"chunkNumber"` // Completed chunks so far (1-based)
	TotalChunks int     `json:"totalChunks"`
	Points      int     `json:"points"`     // Field evaluations in this chunk
	DurationMs  float64 `json:"durationMs"` // Time spent rendering this chunk
}

// ImageUpdate carries a finished image
type ImageUpdate struct {
	ImageData     string  `json:"imageData"` // Base64 encoded PNG
	Output        string  `json:"output"`    // "rgb" or "depth"
	Pass          string  `json:"pass"`      // "fine" or "coarse"
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	TotalRays     int     `json:"totalRays"`
	TotalPoints   int     `json:"totalPoints"`
	Workers       int     `json:"workers"`
	ElapsedMs     float64 `json:"elapsedMs"`
	RaysPerSecond float64 `json:"raysPerSecond"`
}

// SSEEvent represents a unified SSE event for thread-safe writing
type SSEEvent struct {
	Type string `json:"type"` // "console", "chunk", "image", "error", "complete"
	Data string `json:"data"` // JSON-encoded data
}

// handleRender renders a view with per-chunk progress streamed via SSE
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	s.setSSEHeaders(w)

	ctx := r.Context()

	// Create unified SSE event channel for thread-safe writing
	sseEventChan := make(chan SSEEvent, 100)

	// Start single SSE writer goroutine
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeSSEEvents(w, ctx, sseEventChan)
	}()
	defer func() {
		close(sseEventChan)
		<-writerDone
	}()

	// Parse and validate request
	req, err := s.parseRenderRequest(r)
	if err != nil {
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	// Setup console logging and streaming. The console channel is closed once
	// rendering returns so that the forwarder drains before the SSE channel closes.
	consoleChan, webLogger := s.setupConsoleLogging()
	forwarderDone := make(chan struct{})
	go func() {
		defer close(forwarderDone)
		s.streamConsoleMessages(ctx, consoleChan, sseEventChan)
	}()
	stopConsole := func() {
		close(consoleChan)
		<-forwarderDone
	}

	pipeline, err := s.setupRenderingPipeline(req, webLogger)
	if err != nil {
		stopConsole()
		s.handleError(ctx, sseEventChan, err.Error())
		return
	}

	webLogger.Infof("rendering %s at %dx%d (%d+%d samples)",
		req.Scene, pipeline.Camera.Width, pipeline.Camera.Height, req.Samples, req.Importance)
	result, stats, err := pipeline.Renderer.RenderWithProgress(ctx, pipeline.Batch, func(c renderer.ChunkCompletion) {
		s.handleChunkUpdate(ctx, sseEventChan, c)
	})
	stopConsole()
	if err != nil {
		s.handleError(ctx, sseEventChan, fmt.Sprintf("Rendering failed: %v", err))
		return
	}

	if err := s.sendImage(ctx, sseEventChan, result, stats, req, pipeline); err != nil {
		s.handleError(ctx, sseEventChan, err.Error())
		return
	}

	// Send completion event
	select {
	case sseEventChan <- SSEEvent{Type: "complete", Data: "Rendering completed"}:
	case <-ctx.Done():
	}
}

// setSSEHeaders sets the required headers for Server-Sent Events
func (s *Server) setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

// setupConsoleLogging creates console channel and web logger for a render
func (s *Server) setupConsoleLogging() (chan ConsoleMessage, core.Logger) {
	consoleChan := make(chan ConsoleMessage, 50)
	webLogger := NewWebLogger(newRenderID(), consoleChan, s.logger)
	return consoleChan, webLogger
}

// writeSSEEvents handles writing all SSE events in a single goroutine (thread-safe)
func (s *Server) writeSSEEvents(w http.ResponseWriter, ctx context.Context, sseEventChan chan SSEEvent) {
	for {
		select {
		case event, ok := <-sseEventChan:
			if !ok {
				// Channel closed
				return
			}

			// Check if client is still connected before writing
			select {
			case <-ctx.Done():
				// Client disconnected, stop sending messages
				return
			default:
			}

			// Write SSE event
			_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			if err != nil {
				// Client disconnected during write
				return
			}
			if flusher, ok := w.(http.Flusher); ok {
				flusher.Flush()
			}

		case <-ctx.Done():
			// Client disconnected
			return
		}
	}
}

// streamConsoleMessages forwards console messages to the SSE channel until the
// console channel is closed
func (s *Server) streamConsoleMessages(ctx context.Context, consoleChan chan ConsoleMessage, sseEventChan chan SSEEvent) {
	for consoleMsg := range consoleChan {
		data, err := json.Marshal(consoleMsg)
		if err != nil {
			s.logger.Warnf("Error marshaling console message: %v", err)
			continue
		}

		// Send to unified SSE channel
		select {
		case sseEventChan <- SSEEvent{Type: "console", Data: string(data)}:
		case <-ctx.Done():
		default:
			// Channel full, skip message to avoid blocking
		}
	}
}

// handleChunkUpdate sends a chunk progress event
func (s *Server) handleChunkUpdate(ctx context.Context, sseEventChan chan SSEEvent, c renderer.ChunkCompletion) {
	data, err := json.Marshal(ChunkUpdate{
		FirstRay:    c.Chunk.Lo,
		LastRay:     c.Chunk.Hi - 1,
		ChunkNumber: c.ChunkNumber,
		TotalChunks: c.TotalChunks,
		Points:      c.Stats.Points,
		DurationMs:  float64(c.Stats.Duration) / float64(time.Millisecond),
	})
	if err != nil {
		s.logger.Warnf("Error marshaling chunk update: %v", err)
		return
	}
	select {
	case sseEventChan <- SSEEvent{Type: "chunk", Data: string(data)}:
	case <-ctx.Done():
	}
}

// sendImage encodes the requested output of a finished render and sends it
func (s *Server) sendImage(ctx context.Context, sseEventChan chan SSEEvent, result *integrator.Result,
	stats renderer.RenderStats, req *RenderRequest, p *RenderingPipeline) error {
	img, err := outputImage(result, req.Output, p.Camera.Width, p.Camera.Height)
	if err != nil {
		return err
	}
	imageData, err := s.imageToBase64PNG(img)
	if err != nil {
		return errors.Wrap(err, "failed to encode image")
	}
	data, err := json.Marshal(ImageUpdate{
		ImageData:     imageData,
		Output:        req.Output,
		Pass:          result.PrimaryKind(),
		Width:         p.Camera.Width,
		Height:        p.Camera.Height,
		TotalRays:     stats.TotalRays,
		TotalPoints:   stats.TotalPoints,
		Workers:       stats.Workers,
		ElapsedMs:     float64(stats.Duration) / float64(time.Millisecond),
		RaysPerSecond: stats.RaysPerSecond(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to marshal image update")
	}
	select {
	case sseEventChan <- SSEEvent{Type: "image", Data: string(data)}:
	case <-ctx.Done():
	}
	return nil
}

// outputImage turns the primary pass of a result into an rgb or depth image
func outputImage(result *integrator.Result, output string, width, height int) (*image.RGBA, error) {
	kind := result.PrimaryKind()
	switch output {
	case "rgb":
		return renderer.ImageFromResult(result, "rgb_"+kind, width, height)
	case "depth":
		return renderer.DepthImage(result, "depth_"+kind, width, height)
	default:
		return nil, errors.Errorf("unknown output %q", output)
	}
}

// parseRenderRequest parses request parameters
func (s *Server) parseRenderRequest(r *http.Request) (*RenderRequest, error) {
	// Initialize request
	req := &RenderRequest{}

	// Parse common scene parameters using shared function
	if err := s.parseCommonSceneParams(r, req); err != nil {
		return nil, err
	}

	req.Output = r.URL.Query().Get("output")
	if req.Output == "" {
		req.Output = "rgb"
	}
	if req.Output != "rgb" && req.Output != "depth" {
		return nil, errors.Errorf("output must be rgb or depth, got: %s", req.Output)
	}

	// Performance warning
	if req.Width*req.Height > 800*600 && req.Samples+req.Importance > 128 {
		s.logger.Warnf("Render warning: Large image with many samples may render slowly")
	}

	return req, nil
}

// handleImage renders a view and answers with the PNG directly
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	requestID := newRenderID()
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Access-Control-Allow-Origin", "*")

	req, err := s.parseRenderRequest(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid request: %v", err), http.StatusBadRequest)
		return
	}
	logger := NewWebLogger(requestID, nil, s.logger)
	pipeline, err := s.setupRenderingPipeline(req, logger)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, _, err := pipeline.Renderer.Render(r.Context(), pipeline.Batch)
	if err != nil {
		http.Error(w, fmt.Sprintf("Rendering failed: %v", err), http.StatusInternalServerError)
		return
	}
	img, err := outputImage(result, req.Output, pipeline.Camera.Width, pipeline.Camera.Height)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

// imageToBase64PNG converts an image to base64-encoded PNG
func (s *Server) imageToBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// handleError sends an error event to the SSE channel
func (s *Server) handleError(ctx context.Context, sseEventChan chan SSEEvent, message string) {
	select {
	case sseEventChan <- SSEEvent{Type: "error", Data: message}:
	case <-ctx.Done():
		// Client disconnected, don't block
	}
}
