package compose_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/pipeline/compose"
)

func pageWithInk(w, h int) capture.RGBImage {
	pix := make([]byte, w*h*3)
	for i := range pix {
		pix[i] = 255
	}
	// a block of "ink" in the middle so trimToContent has something to find
	for y := h / 4; y < 3*h/4; y++ {
		for x := w / 4; x < 3*w/4; x++ {
			i := (y*w + x) * 3
			pix[i], pix[i+1], pix[i+2] = 0, 0, 0
		}
	}
	return capture.RGBImage{Width: w, Height: h, Pix: pix}
}

func TestComposeFilenamesZeroPaddedAndOrdered(t *testing.T) {
	dir := t.TempDir()
	c := compose.New(filepath.Join(dir, "pages"))

	candidates := []capture.PageCandidate{
		{FrameIndex: 0, Image: pageWithInk(200, 200)},
		{FrameIndex: 1, Image: pageWithInk(200, 200)},
	}

	images, _, _, err := c.Compose(candidates, []string{"png"}, false)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if filepath.Base(images[0]) != "page_001.png" || filepath.Base(images[1]) != "page_002.png" {
		t.Errorf("expected zero-padded sequential filenames, got %v", images)
	}
	for _, p := range images {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected file to exist: %v", err)
		}
	}
}

func TestComposeSheetCompleteOnlyInScrollModeWithMultiplePages(t *testing.T) {
	dir := t.TempDir()
	c := compose.New(filepath.Join(dir, "pages"))

	candidates := []capture.PageCandidate{
		{Image: pageWithInk(200, 200)},
		{Image: pageWithInk(200, 200)},
	}

	_, _, sheetComplete, err := c.Compose(candidates, []string{"png"}, true)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if sheetComplete == "" {
		t.Error("expected sheet_complete.png for scroll mode with >=2 pages")
	}
}

func TestComposeSinglePageNoSheetComplete(t *testing.T) {
	dir := t.TempDir()
	c := compose.New(filepath.Join(dir, "pages"))

	candidates := []capture.PageCandidate{
		{Image: pageWithInk(200, 200)},
	}

	images, _, sheetComplete, err := c.Compose(candidates, []string{"png"}, true)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if len(images) != 1 {
		t.Fatalf("expected exactly one page, got %d", len(images))
	}
	if sheetComplete != "" {
		t.Error("expected no sheet_complete.png for a single page")
	}
}
