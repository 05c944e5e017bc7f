package stitch_test

import (
	"testing"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/pipeline/stitch"
)

func solid(w, h int, v byte) capture.RGBImage {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = v
	}
	return capture.RGBImage{Width: w, Height: h, Pix: pix}
}

func TestScrollHeightNeverExceedsSumOfInputs(t *testing.T) {
	captures := []capture.RectifiedCapture{
		{FrameIndex: 0, Image: solid(100, 200, 250)},
		{FrameIndex: 1, Image: solid(100, 200, 250)},
		{FrameIndex: 2, Image: solid(100, 200, 250)},
	}
	strips := stitch.Scroll(captures, stitch.DefaultOverlapBand)

	sumInputHeights := 0
	for _, c := range captures {
		sumInputHeights += c.Image.Height
	}

	totalOut := 0
	for _, s := range strips {
		totalOut += s.Image.Height
	}

	if totalOut > sumInputHeights {
		t.Fatalf("stitched height %d exceeds sum of input heights %d", totalOut, sumInputHeights)
	}
}

func TestScrollSingleCaptureProducesOneStrip(t *testing.T) {
	captures := []capture.RectifiedCapture{
		{FrameIndex: 0, Image: solid(100, 200, 250)},
	}
	strips := stitch.Scroll(captures, stitch.DefaultOverlapBand)
	if len(strips) != 1 {
		t.Fatalf("expected 1 strip for single capture, got %d", len(strips))
	}
	if strips[0].Image.Height != 200 {
		t.Errorf("expected height 200, got %d", strips[0].Image.Height)
	}
}

func TestPageClusterCollapsesDuplicates(t *testing.T) {
	captures := []capture.RectifiedCapture{
		{FrameIndex: 0, Hash: 0x1111, BBox: capture.Rect{MaxX: 10, MaxY: 10}},
		{FrameIndex: 1, Hash: 0x1111, BBox: capture.Rect{MaxX: 20, MaxY: 20}},
		{FrameIndex: 2, Hash: 0xFFFFFFFFFFFFFFFF, BBox: capture.Rect{MaxX: 5, MaxY: 5}},
	}
	pages := stitch.PageCluster(captures, capture.SensitivityNormal)
	if len(pages) != 2 {
		t.Fatalf("expected 2 page clusters, got %d", len(pages))
	}
	// frames 0 and 1 share a hash, so the first cluster holds both
	if len(pages[0].FrameIndices) != 2 {
		t.Errorf("expected first cluster to have 2 members, got %d", len(pages[0].FrameIndices))
	}
}
