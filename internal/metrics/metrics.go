// Package metrics exposes the Prometheus instrumentation served at
// GET /metrics — per-stage durations, GPU hold state, and upscale backend
// selection counts.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge/histogram the orchestrator and
// pipeline stages update during a job's lifetime.
type Metrics struct {
	registry *prometheus.Registry

	JobsInFlight  prometheus.Gauge
	JobsTotal     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	GPUHeld          prometheus.Gauge
	GPUFallbackTotal *prometheus.CounterVec

	UpscaleBackendTotal *prometheus.CounterVec
	DedupDroppedTotal   prometheus.Counter
	HWAccelSelected     *prometheus.GaugeVec
}

// New registers and returns a fresh Metrics instance using promauto, the
// same registration helper the pack's own metrics package uses. Each call
// gets its own registry so multiple Metrics instances (e.g. across tests)
// never collide on duplicate registration.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		JobsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "sheetcap_jobs_in_flight",
			Help: "Number of jobs currently queued or running.",
		}),
		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetcap_jobs_total",
			Help: "Jobs completed, partitioned by terminal state.",
		}, []string{"state"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sheetcap_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"stage"}),
		GPUHeld: f.NewGauge(prometheus.GaugeOpts{
			Name: "sheetcap_gpu_held",
			Help: "1 if a job currently holds the process-wide GPU mutex, else 0.",
		}),
		GPUFallbackTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetcap_gpu_fallback_total",
			Help: "GPU-hold timeouts that forced a stage onto CPU, by stage.",
		}, []string{"stage"}),
		UpscaleBackendTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sheetcap_upscale_backend_total",
			Help: "Pages upscaled, partitioned by backend used.",
		}, []string{"backend"}),
		DedupDroppedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "sheetcap_dedup_dropped_total",
			Help: "Rectified captures dropped as near-duplicates.",
		}),
		HWAccelSelected: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sheetcap_hwaccel_available",
			Help: "1 if a decode hwaccel method self-tested successfully, else 0.",
		}, []string{"method"}),
	}
}

// Registry returns the Prometheus registry backing this instance, for
// wiring into the `/metrics` Prometheus exposition handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// StageTimer starts timing a pipeline stage; call the returned func when
// the stage completes to record its duration.
func (m *Metrics) StageTimer(stage string) func() {
	start := time.Now()
	return func() {
		m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// RecordGPUAcquired marks the GPU mutex as held.
func (m *Metrics) RecordGPUAcquired() { m.GPUHeld.Set(1) }

// RecordGPUReleased marks the GPU mutex as free.
func (m *Metrics) RecordGPUReleased() { m.GPUHeld.Set(0) }

// RecordGPUFallback records a hold-timeout CPU fallback for stage.
func (m *Metrics) RecordGPUFallback(stage string) {
	m.GPUFallbackTotal.WithLabelValues(stage).Inc()
}

// RecordUpscaleBackend records a page upscaled via backend.
func (m *Metrics) RecordUpscaleBackend(backend string) {
	m.UpscaleBackendTotal.WithLabelValues(backend).Inc()
}

// RecordJobTerminal records a job reaching a terminal state.
func (m *Metrics) RecordJobTerminal(state string) {
	m.JobsTotal.WithLabelValues(state).Inc()
}

// RecordHWAccelAvailability records whether a decode hwaccel method
// self-tested successfully.
func (m *Metrics) RecordHWAccelAvailability(method string, available bool) {
	v := 0.0
	if available {
		v = 1.0
	}
	m.HWAccelSelected.WithLabelValues(method).Set(v)
}
