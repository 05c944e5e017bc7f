package ffmpeg

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// HWAccel is a decode-side hardware acceleration method, probed at process
// start via a live test-decode and cached for the life of the process.
type HWAccel string

const (
	HWAccelNone         HWAccel = "none"
	HWAccelVideoToolbox HWAccel = "videotoolbox"
	HWAccelCUDA         HWAccel = "cuda"
	HWAccelD3D11VA      HWAccel = "d3d11va"
	HWAccelDXVA2        HWAccel = "dxva2"
	HWAccelVAAPI        HWAccel = "vaapi"
	HWAccelQSV          HWAccel = "qsv"
)

// DecodeFallbackChain is the fixed order FrameSource tries decode-side
// hardware acceleration in, falling back to software ("none") last.
var DecodeFallbackChain = []HWAccel{
	HWAccelVideoToolbox,
	HWAccelCUDA,
	HWAccelD3D11VA,
	HWAccelDXVA2,
	HWAccelVAAPI,
	HWAccelQSV,
	HWAccelNone,
}

// HWAccelProbe caches which decode-side hwaccel methods self-test
// successfully on this machine, probed once at process start.
type HWAccelProbe struct {
	mu        sync.RWMutex
	ffmpeg    string
	available map[HWAccel]bool
	probed    bool
}

// NewHWAccelProbe creates a probe bound to the given ffmpeg binary.
func NewHWAccelProbe(ffmpegPath string) *HWAccelProbe {
	return &HWAccelProbe{ffmpeg: ffmpegPath, available: make(map[HWAccel]bool)}
}

// Detect runs a live test-decode for every method in DecodeFallbackChain
// and caches the results. Safe to call multiple times; only the first call
// does the work.
func (p *HWAccelProbe) Detect(ctx context.Context) map[HWAccel]bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.probed {
		return copyAvailability(p.available)
	}

	for _, accel := range DecodeFallbackChain {
		if accel == HWAccelNone {
			p.available[accel] = true
			continue
		}
		p.available[accel] = p.testDecode(ctx, accel)
	}
	p.probed = true
	return copyAvailability(p.available)
}

// testDecode runs a short test decode of a synthetic test pattern using the
// given hwaccel method, returning true only if ffmpeg exits 0.
func (p *HWAccelProbe) testDecode(ctx context.Context, accel HWAccel) bool {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	args := []string{
		"-hwaccel", string(accel),
		"-f", "lavfi",
		"-i", "color=c=black:s=256x256:d=0.1",
		"-frames:v", "1",
		"-f", "null",
		"-",
	}
	cmd := exec.CommandContext(testCtx, p.ffmpeg, args...)
	return cmd.Run() == nil
}

// Available reports whether accel self-tested successfully. Detect must
// have been called first; otherwise this always reports false except for
// "none".
func (p *HWAccelProbe) Available(accel HWAccel) bool {
	if accel == HWAccelNone {
		return true
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.available[accel]
}

// SelectDecode returns the first available hwaccel method in
// DecodeFallbackChain, honoring an explicit non-"auto" preference from
// config if it self-tested successfully, otherwise falling through the
// chain and finally to "none".
func (p *HWAccelProbe) SelectDecode(preference string) HWAccel {
	if preference != "" && preference != "auto" {
		pref := HWAccel(strings.ToLower(preference))
		if pref == HWAccelNone || p.Available(pref) {
			return pref
		}
	}
	for _, accel := range DecodeFallbackChain {
		if p.Available(accel) {
			return accel
		}
	}
	return HWAccelNone
}

// ListAvailable returns every hwaccel method that self-tested successfully,
// in fallback-chain order.
func (p *HWAccelProbe) ListAvailable() []HWAccel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []HWAccel
	for _, accel := range DecodeFallbackChain {
		if p.available[accel] {
			out = append(out, accel)
		}
	}
	return out
}

func copyAvailability(src map[HWAccel]bool) map[HWAccel]bool {
	dst := make(map[HWAccel]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
