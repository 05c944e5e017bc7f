// Package editor implements C9 CaptureEditor: recropping a single
// already-produced capture and regenerating the exported pages from a
// user-selected subset, operating entirely on files already written under
// a job's workspace.
package editor

import (
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/pipeline/compose"
	"github.com/sheetcap/sheetcap/internal/pipeline/rectify"
)

// Editor applies recrop and review-export operations to a job already
// processed by the orchestrator's Pipeline. It holds no job state of its
// own beyond the cache-buster version counters below; every operation
// reads and mutates the *capture.Job handed to it.
type Editor struct {
	versionsMu sync.Mutex
	versions   map[string]int
}

// New creates an Editor.
func New() *Editor {
	return &Editor{versions: make(map[string]int)}
}

// CropResult is returned by CropCapture.
type CropResult struct {
	CapturePath string
	Width       int
	Height      int
	Version     int
}

// CropCapture re-rectifies the capture at capturePath (one of
// job.Manifest.ReviewCandidates) with quad, interpreted in the capture's
// own pixel space rather than the source frame's, overwrites the file in
// place, and bumps a per-capture version counter the UI can use as a
// cache-buster on the unchanged path.
func (e *Editor) CropCapture(job *capture.Job, capturePath string, quad capture.Quadrilateral) (CropResult, error) {
	resolved, err := resolveWithinWorkspace(job.Workspace, capturePath)
	if err != nil {
		return CropResult{}, err
	}

	img, err := loadRGBImage(resolved)
	if err != nil {
		return CropResult{}, fmt.Errorf("load capture: %w", err)
	}

	frame := &capture.Frame{Image: img}
	rc := rectify.Rectify(frame, quad)

	if err := compose.WritePNG(resolved, rc.Image); err != nil {
		return CropResult{}, fmt.Errorf("write cropped capture: %w", err)
	}

	version := e.bumpVersion(resolved)
	return CropResult{
		CapturePath: capturePath,
		Width:       rc.Image.Width,
		Height:      rc.Image.Height,
		Version:     version,
	}, nil
}

// ReviewExportResult is returned by ReviewExport.
type ReviewExportResult struct {
	Images    []string
	PDF       string
	KeptCount int
}

// ReviewExport filters job.Manifest.ReviewCandidates to those whose paths
// appear in keepCaptures, reruns PageComposer over the kept set in formats,
// and overwrites the job's page images/PDF and manifest. It re-enters the
// upscaling step (the sole sanctioned backward transition) purely as a
// lifecycle marker: the kept candidates are already the pipeline's final,
// post-upscale images, so no stage but composition actually re-runs.
// Failures leave the previous manifest untouched.
func (e *Editor) ReviewExport(job *capture.Job, keepCaptures []string, formats []string) (ReviewExportResult, error) {
	keep := make(map[string]struct{}, len(keepCaptures))
	for _, k := range keepCaptures {
		keep[k] = struct{}{}
	}

	var kept []string
	for _, candidate := range job.Manifest.ReviewCandidates {
		if _, ok := keep[candidate]; ok {
			kept = append(kept, candidate)
		}
	}
	if len(kept) == 0 {
		return ReviewExportResult{}, capture.ErrNoCapturesKept
	}

	pages := make([]capture.PageCandidate, 0, len(kept))
	for i, path := range kept {
		resolved, err := resolveWithinWorkspace(job.Workspace, path)
		if err != nil {
			return ReviewExportResult{}, err
		}
		img, err := loadRGBImage(resolved)
		if err != nil {
			return ReviewExportResult{}, fmt.Errorf("load kept capture %s: %w", path, err)
		}
		pages = append(pages, capture.PageCandidate{
			FrameIndex:  i,
			Image:       img,
			CapturePath: path,
		})
	}

	if err := job.ReenterUpscaling(); err != nil {
		return ReviewExportResult{}, err
	}

	if len(formats) == 0 {
		formats = job.Options.Export.Formats
	}
	if len(formats) == 0 {
		formats = []string{"png"}
	}
	scrollMode := job.Options.Detect.LayoutHint == capture.LayoutFullScroll

	composer := compose.New(job.Manifest.OutputDir)
	images, pdfPath, sheetComplete, err := composer.Compose(pages, formats, scrollMode)
	if err != nil {
		return ReviewExportResult{}, capture.NewStageError(capture.CodeExportFailed, err)
	}

	if err := job.AdvanceStep(capture.StepExporting); err != nil {
		return ReviewExportResult{}, err
	}

	job.Manifest.Images = images
	if sheetComplete != "" {
		job.Manifest.Images = append(job.Manifest.Images, sheetComplete)
	}
	job.Manifest.PDF = pdfPath
	job.Manifest.ReviewExport = &capture.ReviewExportInfo{KeptCount: len(kept)}
	job.Complete()

	return ReviewExportResult{Images: job.Manifest.Images, PDF: pdfPath, KeptCount: len(kept)}, nil
}

func (e *Editor) bumpVersion(path string) int {
	e.versionsMu.Lock()
	defer e.versionsMu.Unlock()
	e.versions[path]++
	return e.versions[path]
}

// resolveWithinWorkspace rejects any path that escapes workspace after
// cleaning, guarding against a path-traversal capture_path.
func resolveWithinWorkspace(workspace, path string) (string, error) {
	cleanWorkspace := filepath.Clean(workspace)
	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(cleanPath) {
		cleanPath = filepath.Join(cleanWorkspace, cleanPath)
	}
	rel, err := filepath.Rel(cleanWorkspace, cleanPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", capture.CaptureOutsideWorkspaceError(path)
	}
	return cleanPath, nil
}

func loadRGBImage(path string) (capture.RGBImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return capture.RGBImage{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return capture.RGBImage{}, err
	}
	return toRGBImage(img), nil
}

func toRGBImage(img image.Image) capture.RGBImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, w*h*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pix[i] = byte(r >> 8)
			pix[i+1] = byte(g >> 8)
			pix[i+2] = byte(bl >> 8)
			i += 3
		}
	}
	return capture.RGBImage{Width: w, Height: h, Pix: pix}
}
