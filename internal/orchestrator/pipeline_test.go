package orchestrator

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetcap/sheetcap/internal/capture"
)

func TestFractionalProgressClampsAndInterpolates(t *testing.T) {
	cases := []struct {
		lo, hi, frac, want float64
	}{
		{0, 1.0 / 3.0, 0, 0},
		{0, 1.0 / 3.0, 1, 1.0 / 3.0},
		{1.0 / 3.0, 2.0 / 3.0, 0.5, 0.5},
		{0, 1, -1, 0},  // clamps below 0
		{0, 1, 2, 1},   // clamps above 1
	}
	for _, c := range cases {
		got := fractionalProgress(c.lo, c.hi, c.frac)
		if got < c.want-1e-9 || got > c.want+1e-9 {
			t.Errorf("fractionalProgress(%v, %v, %v) = %v, want %v", c.lo, c.hi, c.frac, got, c.want)
		}
	}
}

func TestWriteCapturePNGRoundTrips(t *testing.T) {
	img := capture.RGBImage{Width: 4, Height: 2, Pix: make([]byte, 4*2*3)}
	for i := range img.Pix {
		img.Pix[i] = byte(i % 256)
	}

	path := filepath.Join(t.TempDir(), "capture.png")
	if err := writeCapturePNG(path, img); err != nil {
		t.Fatalf("writeCapturePNG: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open written png: %v", err)
	}
	defer f.Close()

	decoded, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode written png: %v", err)
	}
	b := decoded.Bounds()
	if b.Dx() != img.Width || b.Dy() != img.Height {
		t.Errorf("expected dimensions %dx%d, got %dx%d", img.Width, img.Height, b.Dx(), b.Dy())
	}
}

func TestNewPipelineImplementsRunner(t *testing.T) {
	p := NewPipeline(nil, nil, nil, nil, nil, nil)
	var _ Runner = p
	if p == nil {
		t.Fatal("expected non-nil pipeline")
	}
}

func TestPipelineTimerNoopWithoutMetrics(t *testing.T) {
	p := NewPipeline(nil, nil, nil, nil, nil, nil)
	stop := p.timer("extracting")
	// Must not panic with a nil metrics instance.
	stop()
}
