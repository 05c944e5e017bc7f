package editor_test

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/editor"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 200, B: 200, A: 255})
		}
	}
	// Paint a dark square so rectify's content-bbox/tone logic has ink to
	// find.
	for y := h / 4; y < 3*h/4; y++ {
		for x := w / 4; x < 3*w/4; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 10, B: 10, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func fullQuad(w, h int) capture.Quadrilateral {
	return capture.Quadrilateral{
		TL: capture.Point{X: 0, Y: 0},
		TR: capture.Point{X: float64(w), Y: 0},
		BR: capture.Point{X: float64(w), Y: float64(h)},
		BL: capture.Point{X: 0, Y: float64(h)},
	}
}

func TestCropCaptureRejectsPathOutsideWorkspace(t *testing.T) {
	workspace := t.TempDir()
	e := editor.New()

	job := &capture.Job{Workspace: workspace}
	_, err := e.CropCapture(job, "../outside.png", fullQuad(10, 10))
	if err == nil {
		t.Fatal("expected error for path escaping workspace")
	}
}

func TestCropCaptureOverwritesFileAndBumpsVersion(t *testing.T) {
	workspace := t.TempDir()
	capturePath := filepath.Join(workspace, "rectified", "page_0000.png")
	writeTestPNG(t, capturePath, 200, 300)

	job := &capture.Job{Workspace: workspace}
	e := editor.New()

	result1, err := e.CropCapture(job, capturePath, fullQuad(200, 300))
	if err != nil {
		t.Fatalf("crop: %v", err)
	}
	if result1.Version != 1 {
		t.Errorf("expected version 1, got %d", result1.Version)
	}
	if result1.Width <= 0 || result1.Height <= 0 {
		t.Errorf("expected positive dimensions, got %dx%d", result1.Width, result1.Height)
	}

	result2, err := e.CropCapture(job, capturePath, fullQuad(200, 300))
	if err != nil {
		t.Fatalf("crop again: %v", err)
	}
	if result2.Version != 2 {
		t.Errorf("expected version to bump to 2, got %d", result2.Version)
	}

	if _, err := os.Stat(capturePath); err != nil {
		t.Errorf("expected capture file to still exist at same path: %v", err)
	}
}

func TestReviewExportRequiresAtLeastOneKeptCapture(t *testing.T) {
	workspace := t.TempDir()
	job := &capture.Job{
		Workspace: workspace,
		State:     capture.StateDone,
		Manifest: capture.Manifest{
			ReviewCandidates: []string{filepath.Join(workspace, "rectified", "page_0000.png")},
		},
	}
	e := editor.New()

	_, err := e.ReviewExport(job, []string{"/not/a/review/candidate.png"}, []string{"png"})
	if err != capture.ErrNoCapturesKept {
		t.Fatalf("expected ErrNoCapturesKept, got %v", err)
	}
}

func TestReviewExportFiltersAndRecomposesKeptSet(t *testing.T) {
	workspace := t.TempDir()
	pagesDir := filepath.Join(workspace, "pages")
	rectifiedDir := filepath.Join(workspace, "rectified")

	var candidates []string
	for i := 0; i < 3; i++ {
		path := filepath.Join(rectifiedDir, fmt.Sprintf("page_%04d.png", i))
		writeTestPNG(t, path, 400, 300)
		candidates = append(candidates, path)
	}

	job := &capture.Job{
		Workspace: workspace,
		State:     capture.StateDone,
		Step:      capture.StepDone,
		Manifest: capture.Manifest{
			OutputDir:        pagesDir,
			ReviewCandidates: candidates,
		},
	}

	e := editor.New()
	result, err := e.ReviewExport(job, []string{candidates[0], candidates[2]}, []string{"png"})
	if err != nil {
		t.Fatalf("review export: %v", err)
	}
	if result.KeptCount != 2 {
		t.Errorf("expected kept count 2, got %d", result.KeptCount)
	}
	if len(result.Images) != 2 {
		t.Errorf("expected 2 recomposed images, got %d", len(result.Images))
	}
	if job.State != capture.StateDone {
		t.Errorf("expected job to land back on done, got %s", job.State)
	}
	if job.Manifest.ReviewExport == nil || job.Manifest.ReviewExport.KeptCount != 2 {
		t.Error("expected manifest review_export.kept_count == 2")
	}
}

