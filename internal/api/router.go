package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sheetcap/sheetcap/internal/metrics"
)

// NewRouter builds the sheetcapd HTTP mux: job lifecycle, the editor
// operations, source/preview resolution, runtime/maintenance read-outs, and
// a Prometheus /metrics scrape endpoint.
func NewRouter(h *Handler, m *metrics.Metrics) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/jobs", h.CreateJob)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/stream", h.JobStream)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
	mux.HandleFunc("DELETE /api/jobs/{id}", h.CancelJob)
	mux.HandleFunc("GET /api/jobs/{id}/files", h.GetJobFiles)
	mux.HandleFunc("POST /api/jobs/{id}/capture-crop", h.CropCapture)
	mux.HandleFunc("POST /api/jobs/{id}/review-export", h.ReviewExport)

	mux.HandleFunc("POST /api/preview/frame", h.PreviewFrame)
	mux.HandleFunc("POST /api/preview/source", h.PreviewSource)

	mux.HandleFunc("GET /api/runtime", h.Runtime)
	mux.HandleFunc("GET /api/maintenance/cache-usage", h.CacheUsage)
	mux.HandleFunc("POST /api/maintenance/clear-cache", h.ClearCache)

	if m != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))
	}

	return mux
}
