// Package dedup implements Dedup: removing near-duplicate rectified
// captures by perceptual-hash Hamming distance.
package dedup

import (
	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/pipeline/rectify"
)

// Threshold is the Hamming-distance threshold at or below which a capture is
// considered a near-duplicate of the last emitted one, keyed by
// sensitivity. This is the single authoritative table; §4.5's page-mode
// clustering reuses it rather than maintaining a second scale.
var Threshold = map[capture.Sensitivity]int{
	capture.SensitivityAggressive: 18,
	capture.SensitivityNormal:     12,
	capture.SensitiveFine:         6,
}

// thresholdFor resolves the numeric threshold, defaulting to normal.
func thresholdFor(s capture.Sensitivity) int {
	if t, ok := Threshold[s]; ok {
		return t
	}
	return Threshold[capture.SensitivityNormal]
}

// Filter removes near-duplicate captures, preserving input order. A
// capture is always emitted if its event is page_transition, even if its
// hash is close to the last emitted one. Idempotent on identical input;
// monotonic — emitting a capture never retroactively suppresses an
// earlier one.
func Filter(captures []capture.RectifiedCapture, sensitivity capture.Sensitivity) []capture.RectifiedCapture {
	threshold := thresholdFor(sensitivity)

	out := make([]capture.RectifiedCapture, 0, len(captures))
	var lastHash uint64
	hasLast := false

	for _, c := range captures {
		if c.Event == capture.EventPageTransition {
			out = append(out, c)
			lastHash = c.Hash
			hasLast = true
			continue
		}
		if !hasLast || rectify.HammingDistance(c.Hash, lastHash) > threshold {
			out = append(out, c)
			lastHash = c.Hash
			hasLast = true
		}
	}
	return out
}
