package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetcap/sheetcap/internal/api"
	"github.com/sheetcap/sheetcap/internal/cache"
	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/config"
	"github.com/sheetcap/sheetcap/internal/editor"
	"github.com/sheetcap/sheetcap/internal/ffmpeg"
	"github.com/sheetcap/sheetcap/internal/metrics"
	"github.com/sheetcap/sheetcap/internal/orchestrator"
	"github.com/sheetcap/sheetcap/internal/sourceresolve"
	"github.com/sheetcap/sheetcap/internal/store"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, job *capture.Job) error { return nil }

func newTestHandler(t *testing.T) (*api.Handler, *orchestrator.Queue) {
	t.Helper()
	dir := t.TempDir()

	st, err := store.NewSQLiteStore(filepath.Join(dir, "jobs.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	q, err := orchestrator.NewQueue(st)
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	m := metrics.New()
	pool := orchestrator.NewWorkerPool(q, noopRunner{}, 1, m)
	pool.Start()
	t.Cleanup(pool.Stop)

	c, err := cache.New(filepath.Join(dir, "cache"))
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.JobsDir = dir

	resolver := sourceresolve.New(cfg.YtdlpPath, c)
	probe := ffmpeg.NewHWAccelProbe(cfg.FFmpegPath)
	previewer := ffmpeg.NewExtractor(cfg.FFmpegPath, probe)
	ed := editor.New()

	h := api.NewHandler(q, pool, resolver, previewer, ed, c, cfg)
	return h, q
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("fake-video"), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestCreateJobWithMissingFilePathReturnsConflict(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := api.NewRouter(h, nil)

	body, _ := json.Marshal(api.CreateJobRequest{
		SourceType: "file",
		FilePath:   filepath.Join(t.TempDir(), "missing.mp4"),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unresolvable source, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateJobWithValidFileEnqueuesJob(t *testing.T) {
	h, q := newTestHandler(t)
	mux := api.NewRouter(h, nil)

	src := filepath.Join(t.TempDir(), "video.mp4")
	writeFile(t, src)

	body, _ := json.Marshal(api.CreateJobRequest{
		SourceType: "file",
		FilePath:   src,
		Options:    capture.Options{},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["job_id"] == "" {
		t.Fatal("expected non-empty job_id")
	}

	if _, err := q.Get(resp["job_id"]); err != nil {
		t.Fatalf("expected job to be queued: %v", err)
	}
}

func TestGetJobUnknownReturnsNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := api.NewRouter(h, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCacheUsageReportsZeroForEmptyCache(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := api.NewRouter(h, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/maintenance/cache-usage", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["total_bytes"].(float64) != 0 {
		t.Errorf("expected zero bytes for empty cache, got %v", resp["total_bytes"])
	}
}

func TestPreviewSourceFileReportsNotFromCache(t *testing.T) {
	h, _ := newTestHandler(t)
	mux := api.NewRouter(h, nil)

	src := filepath.Join(t.TempDir(), "video.mp4")
	writeFile(t, src)

	body, _ := json.Marshal(api.PreviewSourceRequest{SourceType: "file", FilePath: src})
	req := httptest.NewRequest(http.MethodPost, "/api/preview/source", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["video_path"] != src {
		t.Errorf("expected video_path %q, got %v", src, resp["video_path"])
	}
	if resp["from_cache"] != false {
		t.Errorf("expected from_cache=false for a local file, got %v", resp["from_cache"])
	}
}
