// Package stitch implements Stitcher: assembling a scroll-mode long strip
// by phase-correlation overlap, or clustering frames per page in
// page-turn/bottom-bar layouts.
package stitch

import (
	"math"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/pipeline/dedup"
	"github.com/sheetcap/sheetcap/internal/pipeline/rectify"
)

// DefaultOverlapBand is the fraction of capture height searched for a
// vertical phase-correlation offset.
const DefaultOverlapBand = 0.20

// CorrelationFloor is the minimum acceptable phase-correlation peak; an
// offset below this starts a new strip instead.
const CorrelationFloor = 0.35

// Scroll builds one or more vertical strips from a sequence of rectified
// captures using phase-correlation overlap detection, restricted to an
// overlapBand fraction of each capture's height. Guarantees no output row
// is written twice.
func Scroll(captures []capture.RectifiedCapture, overlapBand float64) []capture.PageCandidate {
	if overlapBand <= 0 {
		overlapBand = DefaultOverlapBand
	}
	if len(captures) == 0 {
		return nil
	}

	var strips []capture.PageCandidate
	var current capture.RGBImage
	var currentIndices []int

	flush := func() {
		if current.Height > 0 {
			strips = append(strips, capture.PageCandidate{
				FrameIndices: append([]int(nil), currentIndices...),
				Image:        current,
			})
		}
		current = capture.RGBImage{}
		currentIndices = nil
	}

	for _, c := range captures {
		if current.Height == 0 {
			current = c.Image
			currentIndices = []int{c.FrameIndex}
			continue
		}

		offset, peak := verticalPhaseCorrelation(current, c.Image, overlapBand)
		if peak < CorrelationFloor {
			flush()
			current = c.Image
			currentIndices = []int{c.FrameIndex}
			continue
		}

		current = appendNonOverlapping(current, c.Image, offset)
		currentIndices = append(currentIndices, c.FrameIndex)
	}
	flush()

	return strips
}

// appendNonOverlapping appends the slice of next below offset rows into
// current (the amount of next already visible in current, per the phase
// correlation match, is never duplicated).
func appendNonOverlapping(current, next capture.RGBImage, offset int) capture.RGBImage {
	if offset >= next.Height {
		return current
	}
	newRows := next.Height - offset
	merged := capture.RGBImage{
		Width:  current.Width,
		Height: current.Height + newRows,
		Pix:    make([]byte, (current.Height+newRows)*current.Width*3),
	}
	copy(merged.Pix, current.Pix)
	srcStart := offset * next.Width * 3
	copy(merged.Pix[current.Height*current.Width*3:], next.Pix[srcStart:])
	return merged
}

// verticalPhaseCorrelation estimates the row offset in `next` at which it
// begins to extend below `base`, by sliding a window down the bottom band of
// base (overlapBand of next's height) and correlating it with the same
// number of rows from the top of next. Returns the offset into `next`
// (rows 0..offset-1 already shown in base) and a peak correlation score in
// [0,1].
func verticalPhaseCorrelation(base, next capture.RGBImage, overlapBand float64) (int, float64) {
	bandRows := int(float64(next.Height) * overlapBand)
	if bandRows < 1 {
		bandRows = 1
	}
	if bandRows > base.Height {
		bandRows = base.Height
	}
	baseBandStart := base.Height - bandRows

	maxSearch := bandRows
	if maxSearch > next.Height {
		maxSearch = next.Height
	}

	bestOffset := 0
	bestScore := -1.0

	for offset := 0; offset < maxSearch; offset++ {
		rows := bandRows - offset
		if rows <= 0 {
			continue
		}
		score := rowCorrelation(base, baseBandStart+offset, next, 0, rows)
		if score > bestScore {
			bestScore = score
			bestOffset = rows
		}
	}
	if bestScore < 0 {
		bestScore = 0
	}
	return bestOffset, bestScore
}

// rowCorrelation computes a normalized luminance correlation between
// base[baseStart:baseStart+rows] and next[nextStart:nextStart+rows].
func rowCorrelation(base capture.RGBImage, baseStart int, next capture.RGBImage, nextStart, rows int) float64 {
	width := min(base.Width, next.Width)
	if rows <= 0 || width <= 0 {
		return 0
	}

	var sumA, sumB, sumAB, sumA2, sumB2 float64
	n := 0
	for r := 0; r < rows; r++ {
		by := baseStart + r
		ny := nextStart + r
		if by >= base.Height || ny >= next.Height {
			break
		}
		for x := 0; x < width; x++ {
			ai := (by*base.Width + x) * 3
			bi := (ny*next.Width + x) * 3
			a := luminance(base.Pix[ai], base.Pix[ai+1], base.Pix[ai+2])
			b := luminance(next.Pix[bi], next.Pix[bi+1], next.Pix[bi+2])
			sumA += a
			sumB += b
			sumAB += a * b
			sumA2 += a * a
			sumB2 += b * b
			n++
		}
	}
	if n == 0 {
		return 0
	}
	fn := float64(n)
	num := fn*sumAB - sumA*sumB
	den := math.Sqrt((fn*sumA2 - sumA*sumA) * (fn*sumB2 - sumB*sumB))
	if den == 0 {
		return 0
	}
	corr := num / den
	// map Pearson correlation [-1,1] to a [0,1] match score
	return (corr + 1) / 2
}

func luminance(r, g, b byte) float64 {
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// PageCluster groups captures by perceptual-hash similarity using the same
// thresholds as dedup, emitting one PageCandidate per cluster: the member
// with the largest content bounding box is chosen as canonical.
func PageCluster(captures []capture.RectifiedCapture, sensitivity capture.Sensitivity) []capture.PageCandidate {
	threshold := dedup.Threshold[sensitivity]
	if threshold == 0 {
		threshold = dedup.Threshold[capture.SensitivityNormal]
	}

	type cluster struct {
		repHash  uint64
		indices  []int
		canonical capture.RectifiedCapture
	}
	var clusters []*cluster

	for _, c := range captures {
		placed := false
		for _, cl := range clusters {
			if rectify.HammingDistance(c.Hash, cl.repHash) <= threshold {
				cl.indices = append(cl.indices, c.FrameIndex)
				if c.BBox.Area() > cl.canonical.BBox.Area() {
					cl.canonical = c
				}
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{
				repHash:   c.Hash,
				indices:   []int{c.FrameIndex},
				canonical: c,
			})
		}
	}

	out := make([]capture.PageCandidate, 0, len(clusters))
	for i, cl := range clusters {
		out = append(out, capture.PageCandidate{
			PageClusterID: i,
			FrameIndices:  cl.indices,
			Image:         cl.canonical.Image,
		})
	}
	return out
}
