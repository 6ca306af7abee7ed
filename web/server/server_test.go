package server

import (
	"bytes"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/df07/go-nerfw-renderer/pkg/config"
	"github.com/df07/go-nerfw-renderer/pkg/renderer"
	"github.com/df07/go-nerfw-renderer/pkg/scene"
)

func newTestServer(t *testing.T, system *renderer.System) http.Handler {
	t.Helper()
	return NewServer(0, "../../scenes", system, nil).Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func smallSystem(t *testing.T) *renderer.System {
	t.Helper()
	cfg := config.Default()
	cfg.NEmbXYZ, cfg.NEmbDir = 2, 1
	cfg.NVocab, cfg.NOutfit, cfg.NA = 3, 2, 2
	cfg.Depth, cfg.Width, cfg.Skips = 2, 8, []int{1}
	cfg.NSamples, cfg.NImportance = 8, 8
	cfg.Seed = 5
	sys, err := renderer.NewSystem(cfg)
	require.NoError(t, err)
	return sys
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["model"])
}

func TestScenes(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/scenes")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp scene.ScenesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Groups)
	assert.Equal(t, "Built-in Scenes", resp.Groups[0].Name)

	ids := map[string]bool{}
	for _, g := range resp.Groups {
		for _, s := range g.Scenes {
			ids[s.ID] = true
		}
	}
	assert.True(t, ids["landmark"], "landmark should be listed")
	assert.True(t, ids["file:old-town"], "scene files should be listed")
}

func TestImage(t *testing.T) {
	h := newTestServer(t, nil)
	for _, output := range []string{"rgb", "depth"} {
		t.Run(output, func(t *testing.T) {
			rec := get(t, h, "/api/image?scene=landmark&width=8&height=6&samples=8&importance=8&output="+output)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
			assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "render-"))

			img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, 8, img.Bounds().Dx())
			assert.Equal(t, 6, img.Bounds().Dy())
		})
	}
}

func TestImageErrors(t *testing.T) {
	h := newTestServer(t, nil)
	tests := []struct {
		name  string
		query string
	}{
		{"unknown output", "output=normals"},
		{"unknown scene", "scene=nowhere"},
		{"escaping scene file", "scene=file:../secrets"},
		{"width out of range", "width=5000"},
		{"bad float", "azimuth=left"},
		{"model without checkpoint", "model=true"},
		{"too few samples for importance", "samples=2&importance=4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, "/api/image?width=4&height=4&"+tt.query)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestImageOrbitChangesView(t *testing.T) {
	h := newTestServer(t, nil)
	front := get(t, h, "/api/image?scene=landmark&width=8&height=8&samples=8&importance=0")
	side := get(t, h, "/api/image?scene=landmark&width=8&height=8&samples=8&importance=0&azimuth=90")
	require.Equal(t, http.StatusOK, front.Code)
	require.Equal(t, http.StatusOK, side.Code)
	assert.NotEqual(t, front.Body.Bytes(), side.Body.Bytes())
}

func TestRenderStreamsEvents(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/render?scene=fog&width=8&height=4&samples=8&importance=8")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: chunk\n")
	assert.Contains(t, body, "event: image\n")
	assert.Contains(t, body, "event: complete\n")
	assert.NotContains(t, body, "event: error\n")
	assert.Less(t, strings.Index(body, "event: image\n"), strings.Index(body, "event: complete\n"))

	var update ImageUpdate
	require.NoError(t, json.Unmarshal([]byte(eventData(t, body, "image")), &update))
	assert.Equal(t, "fine", update.Pass)
	assert.Equal(t, 32, update.TotalRays)
	assert.Equal(t, 32*(8+16), update.TotalPoints)
	assert.NotEmpty(t, update.ImageData)
}

func TestRenderReportsErrors(t *testing.T) {
	rec := get(t, newTestServer(t, nil), "/api/render?scene=nowhere")
	body := rec.Body.String()
	assert.Contains(t, body, "event: error\n")
	assert.NotContains(t, body, "event: complete\n")
}

func TestRenderModel(t *testing.T) {
	h := newTestServer(t, smallSystem(t))
	rec := get(t, h, "/api/render?model=true&scene=landmark&width=4&height=4&samples=6&importance=4&frame=2&outfitId=1&output=depth")
	body := rec.Body.String()
	require.Contains(t, body, "event: complete\n", body)

	var update ImageUpdate
	require.NoError(t, json.Unmarshal([]byte(eventData(t, body, "image")), &update))
	assert.Equal(t, "depth", update.Output)
	assert.Equal(t, 16*(6+10), update.TotalPoints)
}

func TestRenderModelRejectsUnknownFrame(t *testing.T) {
	h := newTestServer(t, smallSystem(t))
	rec := get(t, h, "/api/render?model=true&width=4&height=4&samples=8&importance=8&frame=7")
	assert.Contains(t, rec.Body.String(), "event: error\n")
}

func TestInspect(t *testing.T) {
	h := newTestServer(t, nil)
	rec := get(t, h, "/api/inspect?scene=landmark&width=9&height=9&samples=16&importance=16&transient=true&x=4&y=4")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp InspectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "fine", resp.Pass)
	assert.Equal(t, 40, resp.Ray)
	assert.Len(t, resp.Samples, 32)
	require.NotNil(t, resp.Beta)
	require.NotNil(t, resp.Static)
	for k := 1; k < len(resp.Samples); k++ {
		assert.LessOrEqual(t, resp.Samples[k-1].T, resp.Samples[k].T)
	}
	if resp.Accepted {
		assert.Greater(t, resp.Peak.Weight, 0.0)
	}
}

func TestInspectErrors(t *testing.T) {
	h := newTestServer(t, nil)
	for _, query := range []string{"x=1", "x=20&y=1", "x=a&y=1"} {
		t.Run(query, func(t *testing.T) {
			rec := get(t, h, "/api/inspect?scene=fog&width=10&height=10&"+query)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// eventData returns the data line of the first event of the given type
func eventData(t *testing.T, body, event string) string {
	t.Helper()
	for _, block := range strings.Split(body, "\n\n") {
		if data, ok := strings.CutPrefix(block, "event: "+event+"\ndata: "); ok {
			return data
		}
	}
	t.Fatalf("no %s event in stream", event)
	return ""
}

func TestInspectFitBounds(t *testing.T) {
	h := newTestServer(t, nil)
	rec := get(t, h, "/api/inspect?scene=fog&width=9&height=9&samples=8&importance=0&fit=true&x=4&y=4")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp InspectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Samples, 8)
	// The fog sphere has radius 1 around the origin, the camera sits at z=3
	for _, s := range resp.Samples {
		assert.GreaterOrEqual(t, s.T, 2.0-1e-9)
		assert.LessOrEqual(t, s.T, 4.0+1e-9)
	}
}
