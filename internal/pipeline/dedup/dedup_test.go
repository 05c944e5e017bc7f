package dedup_test

import (
	"testing"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/pipeline/dedup"
)

func TestFilterPreservesOrderAndBoundsLength(t *testing.T) {
	in := []capture.RectifiedCapture{
		{FrameIndex: 0, Hash: 0x0000000000000000},
		{FrameIndex: 1, Hash: 0x0000000000000001}, // 1 bit different, below normal threshold
		{FrameIndex: 2, Hash: 0xFFFFFFFFFFFFFFFF}, // 64 bits different, above threshold
	}
	out := dedup.Filter(in, capture.SensitivityNormal)

	if len(out) > len(in) {
		t.Fatalf("output length %d exceeds input length %d", len(out), len(in))
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 captures emitted, got %d", len(out))
	}
	if out[0].FrameIndex != 0 || out[1].FrameIndex != 2 {
		t.Errorf("expected order preserved [0,2], got [%d,%d]", out[0].FrameIndex, out[1].FrameIndex)
	}
}

func TestFilterAllDuplicatesCollapseToOne(t *testing.T) {
	in := make([]capture.RectifiedCapture, 0, 20)
	for i := 0; i < 20; i++ {
		in = append(in, capture.RectifiedCapture{FrameIndex: i, Hash: 0x1234})
	}
	out := dedup.Filter(in, capture.SensitivityNormal)
	if len(out) != 1 {
		t.Fatalf("expected exactly one capture for all-duplicate input, got %d", len(out))
	}
}

func TestFilterAlwaysEmitsPageTransition(t *testing.T) {
	in := []capture.RectifiedCapture{
		{FrameIndex: 0, Hash: 0x1234},
		{FrameIndex: 1, Hash: 0x1234, Event: capture.EventPageTransition},
	}
	out := dedup.Filter(in, capture.SensitivityAggressive)
	if len(out) != 2 {
		t.Fatalf("expected page transition always emitted, got %d captures", len(out))
	}
}

func TestFilterIdempotent(t *testing.T) {
	in := []capture.RectifiedCapture{
		{FrameIndex: 0, Hash: 0x0},
		{FrameIndex: 1, Hash: 0xFFFFFFFFFFFFFFFF},
	}
	first := dedup.Filter(in, capture.SensitivityNormal)
	second := dedup.Filter(first, capture.SensitivityNormal)
	if len(first) != len(second) {
		t.Fatalf("expected idempotent filtering, got %d then %d", len(first), len(second))
	}
}
