// Package api implements the HTTP control surface over JobOrchestrator and
// CaptureEditor: job submission/inspection/cancellation, source/preview
// resolution, the review-export/crop-capture editor endpoints, and the
// runtime/maintenance read-outs.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/sheetcap/sheetcap/internal/cache"
	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/config"
	"github.com/sheetcap/sheetcap/internal/editor"
	"github.com/sheetcap/sheetcap/internal/ffmpeg"
	"github.com/sheetcap/sheetcap/internal/orchestrator"
	"github.com/sheetcap/sheetcap/internal/sourceresolve"
)

// Handler provides HTTP handlers for the sheetcapd control surface.
type Handler struct {
	queue      *orchestrator.Queue
	workerPool *orchestrator.WorkerPool
	resolver   *sourceresolve.Resolver
	previewer  *ffmpeg.Extractor
	editor     *editor.Editor
	cache      *cache.Cache
	cfg        *config.Config
}

// NewHandler creates a Handler wired to the running service's components.
func NewHandler(queue *orchestrator.Queue, workerPool *orchestrator.WorkerPool, resolver *sourceresolve.Resolver, previewer *ffmpeg.Extractor, ed *editor.Editor, c *cache.Cache, cfg *config.Config) *Handler {
	return &Handler{
		queue:      queue,
		workerPool: workerPool,
		resolver:   resolver,
		previewer:  previewer,
		editor:     ed,
		cache:      c,
		cfg:        cfg,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStageError maps a *capture.StageError's taxonomized code to an HTTP
// status: input_invalid/400, source_unavailable/cancelled/409, everything
// else/500, so API clients get a consistent mapping regardless of which
// stage produced the failure.
func writeStageError(w http.ResponseWriter, err error) {
	se := capture.AsStageError(err)
	status := http.StatusInternalServerError
	switch se.Code {
	case capture.CodeInputInvalid:
		status = http.StatusBadRequest
	case capture.CodeSourceUnavailable, capture.CodeCancelled:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": se.Error(), "error_code": string(se.Code)})
}

// CreateJobRequest is the request body for POST /api/jobs, per spec §6.
type CreateJobRequest struct {
	SourceType string          `json:"source_type"`
	FilePath   string          `json:"file_path,omitempty"`
	YouTubeURL string          `json:"youtube_url,omitempty"`
	Options    capture.Options `json:"options"`
}

// CreateJob handles POST /api/jobs: resolves the source synchronously (a
// local file is a stat, a YouTube URL may download through the cache) and
// enqueues the job for the worker pool to run.
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	resolved, err := h.resolver.Resolve(ctx, sourceresolve.Request{
		Type:       sourceresolve.SourceType(req.SourceType),
		FilePath:   req.FilePath,
		YouTubeURL: req.YouTubeURL,
	})
	if err != nil {
		writeStageError(w, err)
		return
	}

	jobID := uuid.NewString()
	workspace := filepath.Join(h.cfg.JobsDir, jobID)
	if err := os.MkdirAll(workspace, 0755); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("create workspace: %v", err))
		return
	}

	job := &capture.Job{
		ID:        jobID,
		Workspace: workspace,
		Source:    capture.SourceDescriptor{FetchedPath: resolved.VideoPath},
		Options:   req.Options,
		State:     capture.StateQueued,
		Step:      capture.StepInitializing,
		CreatedAt: time.Now(),
	}

	if err := h.queue.Add(job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID})
}

// ListJobs handles GET /api/jobs.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  h.queue.GetAll(),
		"stats": h.queue.Stats(),
	})
}

// GetJob handles GET /api/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.queue.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// JobFilesResponse is the body of GET /api/jobs/{id}/files.
type JobFilesResponse struct {
	Images           []string `json:"images"`
	PDF              string   `json:"pdf,omitempty"`
	ReviewCandidates []string `json:"review_candidates"`
}

// GetJobFiles handles GET /api/jobs/{id}/files.
func (h *Handler) GetJobFiles(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.queue.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, JobFilesResponse{
		Images:           job.Manifest.Images,
		PDF:              job.Manifest.PDF,
		ReviewCandidates: job.Manifest.ReviewCandidates,
	})
}

// CancelJob handles DELETE /api/jobs/{id}.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.queue.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if job.State == capture.StateRunning {
		h.workerPool.CancelJob(id)
	} else if !job.IsTerminal() {
		if _, err := h.queue.Mutate(id, "cancelled", func(j *capture.Job) error {
			j.Cancel()
			return nil
		}); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// CropCaptureRequest is the body of POST /api/jobs/{id}/capture-crop.
type CropCaptureRequest struct {
	CapturePath string                `json:"capture_path"`
	Quad        capture.Quadrilateral `json:"quad"`
}

// CropCapture handles POST /api/jobs/{id}/capture-crop.
func (h *Handler) CropCapture(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	job, err := h.queue.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req CropCaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.editor.CropCapture(job, req.CapturePath, req.Quad)
	if err != nil {
		writeStageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ReviewExportRequest is the body of POST /api/jobs/{id}/review-export.
type ReviewExportRequest struct {
	KeepCaptures []string `json:"keep_captures"`
	Formats      []string `json:"formats,omitempty"`
}

// ReviewExport handles POST /api/jobs/{id}/review-export.
func (h *Handler) ReviewExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.queue.Get(id); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	var req ReviewExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var result editor.ReviewExportResult
	_, mutateErr := h.queue.Mutate(id, "review_export", func(j *capture.Job) error {
		r, err := h.editor.ReviewExport(j, req.KeepCaptures, req.Formats)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if mutateErr != nil {
		writeStageError(w, mutateErr)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PreviewFrameRequest is the body of POST /api/preview/frame.
type PreviewFrameRequest struct {
	SourceType string  `json:"source_type"`
	FilePath   string  `json:"file_path,omitempty"`
	YouTubeURL string  `json:"youtube_url,omitempty"`
	StartSec   float64 `json:"start_sec,omitempty"`
}

// PreviewFrame handles POST /api/preview/frame: resolves the source and
// decodes a single frame at start_sec, per §6's {image_path} response.
func (h *Handler) PreviewFrame(w http.ResponseWriter, r *http.Request) {
	var req PreviewFrameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	resolved, err := h.resolver.Resolve(ctx, sourceresolve.Request{
		Type:       sourceresolve.SourceType(req.SourceType),
		FilePath:   req.FilePath,
		YouTubeURL: req.YouTubeURL,
	})
	if err != nil {
		writeStageError(w, err)
		return
	}

	previewPath := filepath.Join(os.TempDir(), fmt.Sprintf("sheetcap-preview-%s.png", uuid.NewString()))
	if err := h.previewer.ExtractPreview(ctx, resolved.VideoPath, req.StartSec, previewPath); err != nil {
		writeStageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"image_path": previewPath})
}

// PreviewSourceRequest is the body of POST /api/preview/source.
type PreviewSourceRequest struct {
	SourceType string `json:"source_type"`
	FilePath   string `json:"file_path,omitempty"`
	YouTubeURL string `json:"youtube_url,omitempty"`
}

// PreviewSource handles POST /api/preview/source: resolves (and, for a
// YouTube source, fetches/caches) the source video without starting a job.
func (h *Handler) PreviewSource(w http.ResponseWriter, r *http.Request) {
	var req PreviewSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	resolved, err := h.resolver.Resolve(ctx, sourceresolve.Request{
		Type:       sourceresolve.SourceType(req.SourceType),
		FilePath:   req.FilePath,
		YouTubeURL: req.YouTubeURL,
	})
	if err != nil {
		writeStageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"video_path": resolved.VideoPath,
		"from_cache": resolved.FromCache,
	})
}

// Runtime handles GET /api/runtime: queue stats plus the resolved worker
// parallelism and the configured hwaccel/upscale-engine preferences. It
// reports the config values, not the results of the startup capability
// probes.
func (h *Handler) Runtime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":       h.queue.Stats(),
		"parallelism": h.cfg.ResolvedParallelism(runtime.NumCPU()),
		"hwaccel":     h.cfg.Hwaccel,
		"upscale":     h.cfg.UpscaleEngine,
	})
}

// CacheUsage handles GET /api/maintenance/cache-usage.
func (h *Handler) CacheUsage(w http.ResponseWriter, r *http.Request) {
	totalBytes, totalHuman, err := h.cache.Usage()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_bytes": totalBytes,
		"total_human": totalHuman,
	})
}

// ClearCache handles POST /api/maintenance/clear-cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	result, err := h.cache.Clear()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reclaimed_bytes": result.ReclaimedBytes,
		"reclaimed_human": result.ReclaimedHuman,
		"cleared_paths":   result.ClearedPaths,
		"skipped_paths":   result.SkippedPaths,
	})
}
