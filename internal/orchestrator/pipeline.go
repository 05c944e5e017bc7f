package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/config"
	"github.com/sheetcap/sheetcap/internal/ffmpeg"
	"github.com/sheetcap/sheetcap/internal/logger"
	"github.com/sheetcap/sheetcap/internal/metrics"
	"github.com/sheetcap/sheetcap/internal/pipeline/compose"
	"github.com/sheetcap/sheetcap/internal/pipeline/dedup"
	"github.com/sheetcap/sheetcap/internal/pipeline/frame"
	"github.com/sheetcap/sheetcap/internal/pipeline/rectify"
	"github.com/sheetcap/sheetcap/internal/pipeline/roi"
	"github.com/sheetcap/sheetcap/internal/pipeline/stitch"
	"github.com/sheetcap/sheetcap/internal/pipeline/upscale"
)

// checkpointInterval mirrors frame.CheckpointInterval: extract/detect poll
// for cancellation every 64 frames (spec §5's suspension-point model).
const checkpointInterval = frame.CheckpointInterval

// Pipeline runs the full FrameSource→...→PageComposer sequence for one job.
// It implements Runner.
type Pipeline struct {
	cfg         *config.Config
	prober      *ffmpeg.Prober
	hwprobe     *ffmpeg.HWAccelProbe
	frameSource *frame.Source
	upscaler    *upscale.Engine
	metrics     *metrics.Metrics
}

// NewPipeline wires the pipeline stages together from already-constructed
// components (the orchestrator's top-level wiring owns their lifetime).
func NewPipeline(cfg *config.Config, prober *ffmpeg.Prober, hwprobe *ffmpeg.HWAccelProbe, fs *frame.Source, up *upscale.Engine, m *metrics.Metrics) *Pipeline {
	return &Pipeline{cfg: cfg, prober: prober, hwprobe: hwprobe, frameSource: fs, upscaler: up, metrics: m}
}

// Run executes every stage in order, advancing job.Step as it goes and
// returning a *capture.StageError on any stage failure. The caller
// (Worker.processJob) is responsible for persisting/broadcasting job
// updates; Run mutates job directly and the worker owns synchronization
// around it for the duration of the call.
func (p *Pipeline) Run(ctx context.Context, job *capture.Job) error {
	framesDir := filepath.Join(job.Workspace, "frames")
	rectifiedDir := filepath.Join(job.Workspace, "rectified")
	pagesDir := filepath.Join(job.Workspace, "pages")

	for _, dir := range []string{framesDir, rectifiedDir, pagesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return capture.NewStageError(capture.CodeInternal, fmt.Errorf("create workspace dir: %w", err))
		}
	}

	videoPath := job.Source.Path()
	if videoPath == "" {
		return capture.NewStageError(capture.CodeSourceUnavailable, fmt.Errorf("no source path resolved"))
	}
	if _, err := os.Stat(videoPath); err != nil {
		return capture.NewStageError(capture.CodeSourceUnavailable, err)
	}

	probeResult, err := p.prober.Probe(ctx, videoPath)
	if err != nil {
		return capture.NewStageError(capture.CodeDecodeFailed, err)
	}
	job.Manifest.SourceResolution = capture.Dimensions{W: probeResult.Width, H: probeResult.Height}
	job.Manifest.SourceDurationSeconds = probeResult.Duration.Seconds()

	if err := job.AdvanceStep(capture.StepExtracting); err != nil {
		return err.(*capture.StageError)
	}

	seq, err := p.runExtract(ctx, job, videoPath, framesDir)
	if err != nil {
		return err
	}

	if err := job.AdvanceStep(capture.StepDetecting); err != nil {
		return err.(*capture.StageError)
	}
	tracked, err := p.runDetect(ctx, job, seq)
	if err != nil {
		return err
	}

	if err := job.AdvanceStep(capture.StepRectifying); err != nil {
		return err.(*capture.StageError)
	}
	captures, err := p.runRectify(ctx, job, seq, tracked)
	if err != nil {
		return err
	}

	var pages []capture.PageCandidate
	if job.Options.Stitch.Enable && job.Options.Detect.LayoutHint == capture.LayoutFullScroll {
		if err := job.AdvanceStep(capture.StepStitching); err != nil {
			return err.(*capture.StageError)
		}
		pages, err = p.runStitch(job, captures)
	} else {
		if err := job.AdvanceStep(capture.StepPageCluster); err != nil {
			return err.(*capture.StageError)
		}
		pages, err = p.runPageCluster(job, captures)
	}
	if err != nil {
		return err
	}

	if err := job.AdvanceStep(capture.StepUpscaling); err != nil {
		return err.(*capture.StageError)
	}
	pages, err = p.runUpscale(ctx, job, pages)
	if err != nil {
		return err
	}

	// Review candidates are the final, post-upscale page images: what
	// review_export and crop_capture operate on, so recropping and
	// re-exporting a kept subset never needs to repeat upscaling.
	pages, err = p.writeReviewCandidates(job, pages, rectifiedDir)
	if err != nil {
		return err
	}

	if err := job.AdvanceStep(capture.StepExporting); err != nil {
		return err.(*capture.StageError)
	}
	if err := p.runExport(job, pages, pagesDir); err != nil {
		return err
	}

	job.SetProgress(1)
	return nil
}

func (p *Pipeline) runExtract(ctx context.Context, job *capture.Job, videoPath, framesDir string) (*frame.Sequence, error) {
	stop := p.timer("extracting")
	defer stop()

	hwPref := "auto"
	if p.cfg != nil && p.cfg.Hwaccel != "" {
		hwPref = p.cfg.Hwaccel
	}
	if job.Options.Extract.Sensitivity == "" {
		job.Options.Extract.Sensitivity = capture.SensitivityMedium
	}

	// The extractor doesn't know the eventual frame count up front, so its
	// stage-local fraction is a saturating estimate (assumes most jobs
	// extract on the order of a few hundred frames) rather than an exact
	// ratio; SetProgress's monotonic clamp keeps this safe regardless.
	onProgress := func(framesDecoded int) {
		frac := float64(framesDecoded) / 500.0
		job.SetProgress(fractionalProgress(0, 1.0/3.0, frac))
		job.Message = fmt.Sprintf("extracted %d frames", framesDecoded)
	}

	seq, err := p.frameSource.Extract(ctx, videoPath, job.Options.Extract, framesDir, hwPref, onProgress)
	if err != nil {
		if ctx.Err() != nil {
			return nil, capture.NewStageError(capture.CodeCancelled, ctx.Err())
		}
		var se *capture.StageError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, capture.NewStageError(capture.CodeDecodeFailed, err)
	}
	return seq, nil
}

func (p *Pipeline) runDetect(ctx context.Context, job *capture.Job, seq *frame.Sequence) ([]roi.Tracked, error) {
	stop := p.timer("detecting")
	defer stop()

	layout := roi.LayoutContext{
		FrameW: job.Manifest.SourceResolution.W,
		FrameH: job.Manifest.SourceResolution.H,
		Hint:   job.Options.Detect.LayoutHint,
	}

	if err := job.Options.Detect.ROI.Validate(layout.FrameW, layout.FrameH); err != nil {
		return nil, capture.NewStageError(capture.CodeInputInvalid, err)
	}

	tracker := roi.NewTracker(layout, job.Options.Detect.ROI)

	results := make([]roi.Tracked, 0, seq.Len())
	candidate := job.Options.Detect.ROI
	var prevHash uint64
	havePrev := false

	for i := 0; i < seq.Len(); i++ {
		if i%checkpointInterval == 0 && ctx.Err() != nil {
			return nil, capture.NewStageError(capture.CodeCancelled, ctx.Err())
		}

		f, err := seq.At(i)
		if err != nil {
			return nil, capture.NewStageError(capture.CodeDecodeFailed, err)
		}

		// The naive per-frame candidate is the previous stabilized quad
		// re-used verbatim (see roi.Tracker.Track's doc comment); the
		// correlation that drives jitter/page-transition detection comes
		// from comparing this frame's rectified candidate against the
		// previous frame's, via the same perceptual hash Rectifier
		// already computes.
		warped := rectify.Rectify(f, candidate)
		correlation := 1.0
		if havePrev {
			correlation = 1.0 - float64(rectify.HammingDistance(prevHash, warped.Hash))/64.0
		}
		prevHash = warped.Hash
		havePrev = true

		t := tracker.Track(i, candidate, correlation)
		results = append(results, t)
		candidate = t.Quad
		if t.Event == capture.EventConfidenceLow {
			job.Message = fmt.Sprintf("low tracking confidence at frame %d", i)
		}

		if seq.Len() > 0 {
			job.SetProgress(fractionalProgress(1.0/3.0, 2.0/3.0, float64(i+1)/float64(seq.Len())))
		}
	}
	return results, nil
}

func (p *Pipeline) runRectify(ctx context.Context, job *capture.Job, seq *frame.Sequence, tracked []roi.Tracked) ([]capture.RectifiedCapture, error) {
	stop := p.timer("rectifying")
	defer stop()

	raw := make([]capture.RectifiedCapture, 0, len(tracked))
	for _, t := range tracked {
		if ctx.Err() != nil {
			return nil, capture.NewStageError(capture.CodeCancelled, ctx.Err())
		}
		f, err := seq.At(t.FrameIndex)
		if err != nil {
			return nil, capture.NewStageError(capture.CodeDecodeFailed, err)
		}
		rc := rectify.Rectify(f, t.Quad)
		rc.Event = t.Event
		raw = append(raw, rc)
	}

	sensitivity := job.Options.Stitch.DedupeLevel
	if sensitivity == "" {
		sensitivity = capture.SensitivityNormal
	}
	filtered := dedup.Filter(raw, sensitivity)
	if p.metrics != nil {
		p.metrics.DedupDroppedTotal.Add(float64(len(raw) - len(filtered)))
	}

	if len(filtered) == 0 {
		return nil, capture.NewStageError(capture.CodeTrackingLost, capture.ErrNoCapturesKept)
	}
	return filtered, nil
}

func (p *Pipeline) runStitch(job *capture.Job, captures []capture.RectifiedCapture) ([]capture.PageCandidate, error) {
	stop := p.timer("stitching")
	defer stop()

	overlap := job.Options.Stitch.OverlapThreshold
	if overlap <= 0 {
		overlap = stitch.DefaultOverlapBand
	}
	pages := stitch.Scroll(captures, overlap)
	if len(pages) == 0 {
		return nil, capture.NewStageError(capture.CodeStitchFailed, fmt.Errorf("no strips produced"))
	}
	return pages, nil
}

func (p *Pipeline) runPageCluster(job *capture.Job, captures []capture.RectifiedCapture) ([]capture.PageCandidate, error) {
	stop := p.timer("page_cluster")
	defer stop()

	sensitivity := job.Options.Stitch.DedupeLevel
	if sensitivity == "" {
		sensitivity = capture.SensitivityNormal
	}
	pages := stitch.PageCluster(captures, sensitivity)
	if len(pages) == 0 {
		return nil, capture.NewStageError(capture.CodeStitchFailed, fmt.Errorf("no page clusters produced"))
	}
	return pages, nil
}

// writeReviewCandidates dumps each page candidate's (post-upscale) image to
// rectifiedDir and records its path as both the candidate's CapturePath and
// a manifest review_candidates entry, so CaptureEditor's crop_capture and
// review_export have stable file paths to operate on; it runs after
// upscaling and before export.
func (p *Pipeline) writeReviewCandidates(job *capture.Job, pages []capture.PageCandidate, rectifiedDir string) ([]capture.PageCandidate, error) {
	job.Manifest.ReviewCandidates = job.Manifest.ReviewCandidates[:0]
	for i := range pages {
		path := filepath.Join(rectifiedDir, fmt.Sprintf("page_%04d.png", i))
		if err := writeCapturePNG(path, pages[i].Image); err != nil {
			return nil, capture.NewStageError(capture.CodeExportFailed, err)
		}
		pages[i].CapturePath = path
		job.Manifest.ReviewCandidates = append(job.Manifest.ReviewCandidates, path)
	}
	return pages, nil
}

func (p *Pipeline) runUpscale(ctx context.Context, job *capture.Job, pages []capture.PageCandidate) ([]capture.PageCandidate, error) {
	if !job.Options.Upscale.Enable {
		return pages, nil
	}
	stop := p.timer("upscaling")
	defer stop()

	factor := job.Options.Upscale.Factor
	if factor <= 0 {
		factor = 2.0
	}

	upscaled, err := p.upscaler.UpscaleAll(ctx, pages, factor, job.Options.Upscale.GPUOnly)
	if err != nil {
		var se *capture.StageError
		if errors.As(err, &se) {
			return nil, se
		}
		if job.Options.Upscale.GPUOnly {
			return nil, capture.NewStageError(capture.CodeUpscaleUnavailable, err)
		}
		return nil, capture.NewStageError(capture.CodeUpscaleFailed, err)
	}

	job.Manifest.UpscaledFrames = job.Manifest.UpscaledFrames[:0]
	for _, pg := range upscaled {
		job.Manifest.UpscaledFrames = append(job.Manifest.UpscaledFrames, pg.FrameIndex)
	}
	if p.metrics != nil {
		p.metrics.RecordUpscaleBackend(string(p.upscaler.SelectedBackend()))
	}
	return upscaled, nil
}

func (p *Pipeline) runExport(job *capture.Job, pages []capture.PageCandidate, pagesDir string) error {
	stop := p.timer("exporting")
	defer stop()

	formats := job.Options.Export.Formats
	if len(formats) == 0 {
		formats = []string{"png"}
	}
	scrollMode := job.Options.Detect.LayoutHint == capture.LayoutFullScroll

	composer := compose.New(pagesDir)
	images, pdfPath, sheetComplete, err := composer.Compose(pages, formats, scrollMode)
	if err != nil {
		return capture.NewStageError(capture.CodeExportFailed, err)
	}

	job.Manifest.OutputDir = pagesDir
	job.Manifest.Images = images
	job.Manifest.PDF = pdfPath
	if sheetComplete != "" {
		job.Manifest.Images = append(job.Manifest.Images, sheetComplete)
	}
	job.Manifest.OutputBytes = sumFileSizes(append(append([]string(nil), job.Manifest.Images...), job.Manifest.PDF))
	return nil
}

// sumFileSizes adds up the on-disk size of every path that stats
// successfully (an empty PDF path, as with image-only export formats, is
// silently skipped), for the queue's cumulative bytes-processed counter.
func sumFileSizes(paths []string) int64 {
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

func (p *Pipeline) timer(stage string) func() {
	if p.metrics == nil {
		return func() {}
	}
	return p.metrics.StageTimer(stage)
}

// fractionalProgress maps frac (0..1, a stage's own completion fraction)
// onto the overall job progress range [lo, hi], keeping progress monotonic
// non-decreasing across stage boundaries rather than resetting to 0 on
// every stage.
func fractionalProgress(lo, hi, frac float64) float64 {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return lo + (hi-lo)*frac
}

func writeCapturePNG(path string, img capture.RGBImage) error {
	return compose.WritePNG(path, img)
}
