// Package roi implements RoiTracker: stabilizing a user-anchored
// quadrilateral across a frame sequence and detecting page-turn events.
package roi

import (
	"math"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/logger"
)

// FilterWindow is the number of recent accepted frames the low-pass corner
// filter averages over.
const FilterWindow = 5

// CornerJitterThreshold is the fraction of the frame dimension a corner may
// move from the filtered value before the candidate is rejected.
const CornerJitterThreshold = 0.08

// PageTransitionThreshold is the normalized-correlation value below which a
// page transition is signaled.
const PageTransitionThreshold = 0.55

// MaxLowConfidenceStreak is the number of consecutive confidence_low frames
// after which the tracker falls back to a fixed rectangle.
const MaxLowConfidenceStreak = 3

// Tracked is one frame's tracking result.
type Tracked struct {
	FrameIndex int
	Quad       capture.Quadrilateral
	Event      capture.TrackEvent
}

// Tracker stabilizes a quad across a frame sequence.
type Tracker struct {
	layout LayoutContext
	window []capture.Quadrilateral
	lowConfidenceStreak int
	lastCorrelation     float64
	fellBack           bool
}

// LayoutContext carries the frame dimensions and the layout hint used to
// compute fallback geometry.
type LayoutContext struct {
	FrameW, FrameH int
	Hint           capture.LayoutHint
}

// NewTracker creates a tracker anchored at q0 on the preview frame.
func NewTracker(layout LayoutContext, q0 capture.Quadrilateral) *Tracker {
	return &Tracker{
		layout: layout,
		window: []capture.Quadrilateral{q0},
	}
}

// Track processes one frame's rectified-candidate correlation against the
// previous one (correlation is supplied by the caller, since computing it
// requires the Rectifier's warp of the candidate quad) and returns the
// stabilized quad plus event for this frame.
//
// candidate is the naive quad estimate for this frame (in the simplest
// implementation, the previous stabilized quad re-used verbatim, since the
// tracker's job is to reject jitter and detect transitions, not to perform
// independent feature detection). correlation is the normalized correlation
// of this frame's rectified candidate against the previous one.
func (t *Tracker) Track(frameIndex int, candidate capture.Quadrilateral, correlation float64) Tracked {
	filtered := t.filteredQuad()

	if correlation < PageTransitionThreshold {
		logger.Info("roi page transition detected", "frame", frameIndex, "correlation", correlation)
		t.window = []capture.Quadrilateral{candidate}
		t.lowConfidenceStreak = 0
		t.fellBack = false
		return Tracked{FrameIndex: frameIndex, Quad: candidate, Event: capture.EventPageTransition}
	}

	if t.cornerJitterExceeded(filtered, candidate) {
		t.lowConfidenceStreak++
		if t.lowConfidenceStreak > MaxLowConfidenceStreak {
			fallback := FallbackQuad(t.layout)
			if !t.fellBack {
				logger.Warn("roi confidence low, falling back to fixed region", "frame", frameIndex, "layout", t.layout.Hint)
				t.fellBack = true
			}
			return Tracked{FrameIndex: frameIndex, Quad: fallback, Event: capture.EventConfidenceLow}
		}
		return Tracked{FrameIndex: frameIndex, Quad: filtered, Event: capture.EventConfidenceLow}
	}

	t.lowConfidenceStreak = 0
	t.fellBack = false
	t.pushWindow(candidate)
	return Tracked{FrameIndex: frameIndex, Quad: t.filteredQuad(), Event: capture.EventNone}
}

func (t *Tracker) pushWindow(q capture.Quadrilateral) {
	t.window = append(t.window, q)
	if len(t.window) > FilterWindow {
		t.window = t.window[len(t.window)-FilterWindow:]
	}
}

func (t *Tracker) filteredQuad() capture.Quadrilateral {
	if len(t.window) == 0 {
		return capture.Quadrilateral{}
	}
	var sum capture.Quadrilateral
	n := float64(len(t.window))
	for _, q := range t.window {
		sum.TL.X += q.TL.X
		sum.TL.Y += q.TL.Y
		sum.TR.X += q.TR.X
		sum.TR.Y += q.TR.Y
		sum.BR.X += q.BR.X
		sum.BR.Y += q.BR.Y
		sum.BL.X += q.BL.X
		sum.BL.Y += q.BL.Y
	}
	return capture.Quadrilateral{
		TL: capture.Point{X: sum.TL.X / n, Y: sum.TL.Y / n},
		TR: capture.Point{X: sum.TR.X / n, Y: sum.TR.Y / n},
		BR: capture.Point{X: sum.BR.X / n, Y: sum.BR.Y / n},
		BL: capture.Point{X: sum.BL.X / n, Y: sum.BL.Y / n},
	}
}

func (t *Tracker) cornerJitterExceeded(filtered, candidate capture.Quadrilateral) bool {
	maxDim := math.Max(float64(t.layout.FrameW), float64(t.layout.FrameH))
	threshold := CornerJitterThreshold * maxDim

	pairs := [][2]capture.Point{
		{filtered.TL, candidate.TL},
		{filtered.TR, candidate.TR},
		{filtered.BR, candidate.BR},
		{filtered.BL, candidate.BL},
	}
	for _, p := range pairs {
		dx := p[0].X - p[1].X
		dy := p[0].Y - p[1].Y
		if math.Sqrt(dx*dx+dy*dy) > threshold {
			return true
		}
	}
	return false
}

// FallbackQuad derives a fixed rectangle from the layout hint: bottom 30%
// of frame for bottom_bar, a centered 80% box otherwise.
func FallbackQuad(layout LayoutContext) capture.Quadrilateral {
	w, h := float64(layout.FrameW), float64(layout.FrameH)
	if layout.Hint == capture.LayoutBottomBar {
		top := h * 0.70
		return capture.Quadrilateral{
			TL: capture.Point{X: 0, Y: top},
			TR: capture.Point{X: w, Y: top},
			BR: capture.Point{X: w, Y: h},
			BL: capture.Point{X: 0, Y: h},
		}
	}
	marginX := w * 0.10
	marginY := h * 0.10
	return capture.Quadrilateral{
		TL: capture.Point{X: marginX, Y: marginY},
		TR: capture.Point{X: w - marginX, Y: marginY},
		BR: capture.Point{X: w - marginX, Y: h - marginY},
		BL: capture.Point{X: marginX, Y: h - marginY},
	}
}
