// Package frame implements FrameSource: decoding a time-bounded slice of a
// video into an ordered sequence of RGB frames.
package frame

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/ffmpeg"
	"github.com/sheetcap/sheetcap/internal/logger"
)

// MaxBufferedFrames is the frame-buffer limit of the backpressure model.
// Extract does not reference it: ffmpeg writes every frame of the window to
// outputDir without throttling.
const MaxBufferedFrames = 256

// CheckpointInterval is the frame count between cancellation checkpoints
// during extraction.
const CheckpointInterval = 64

// Source decodes video slices into frame sequences via the ffmpeg extractor.
type Source struct {
	extractor *ffmpeg.Extractor
}

// New creates a Source bound to the given extractor.
func New(extractor *ffmpeg.Extractor) *Source {
	return &Source{extractor: extractor}
}

// ProgressFunc is invoked at each checkpoint with the number of frames
// decoded so far.
type ProgressFunc func(framesDecoded int)

// Extract decodes [startSec, endSec) of videoPath at the sampling fps
// implied by sensitivity, writing frame files under outputDir and
// returning them as an ordered, lazily-opened Frame sequence. ctx
// cancellation is observed at CheckpointInterval-frame boundaries.
func (s *Source) Extract(ctx context.Context, videoPath string, opts capture.ExtractOptions, outputDir string, hwaccelPref string, onProgress ProgressFunc) (*Sequence, error) {
	startSec, endSec := 0.0, 0.0
	if opts.StartSec != nil {
		startSec = *opts.StartSec
	}
	if opts.EndSec != nil {
		endSec = *opts.EndSec
	}
	if endSec <= startSec {
		return nil, capture.NewStageError(capture.CodeInputInvalid, ffmpeg.ErrEmptyRange)
	}

	fps := ffmpeg.SamplingFPS(opts.Sensitivity)

	progressCh := make(chan ffmpeg.ExtractProgress, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		lastCheckpoint := int64(0)
		for p := range progressCh {
			if onProgress != nil && p.Frame-lastCheckpoint >= CheckpointInterval {
				lastCheckpoint = p.Frame
				onProgress(int(p.Frame))
			}
		}
	}()

	result, err := s.extractor.Extract(ctx, videoPath, startSec, endSec, fps, outputDir, hwaccelPref, progressCh)
	<-done
	if err != nil {
		if errors.Is(err, ffmpeg.ErrFfmpegMissing) {
			return nil, capture.NewStageError(capture.CodeSourceUnavailable, err)
		}
		return nil, capture.NewStageError(capture.CodeDecodeFailed, err)
	}

	logger.Info("frame extraction complete", "frames", result.FrameCount, "accel", result.UsedAccel)

	seq, err := newSequence(outputDir, fps)
	if err != nil {
		return nil, capture.NewStageError(capture.CodeDecodeFailed, err)
	}
	return seq, nil
}

// ExtractPreview returns a single Frame nearest at-or-before atSec, used by
// the ROI chooser.
func (s *Source) ExtractPreview(ctx context.Context, videoPath string, atSec float64, previewPath string) (*capture.Frame, error) {
	if err := s.extractor.ExtractPreview(ctx, videoPath, atSec, previewPath); err != nil {
		if err == ffmpeg.ErrFfmpegMissing {
			return nil, capture.NewStageError(capture.CodeSourceUnavailable, err)
		}
		return nil, capture.NewStageError(capture.CodeDecodeFailed, err)
	}
	return loadFrame(previewPath, 0, atSec)
}

// Sequence is a lazy, index-ordered view over extracted frame files on disk.
type Sequence struct {
	paths []string
	fps   float64
}

func newSequence(dir string, fps float64) (*Sequence, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return &Sequence{paths: paths, fps: fps}, nil
}

// Len returns the number of frames in the sequence.
func (s *Sequence) Len() int { return len(s.paths) }

// At decodes and returns the frame at index i. Frames are consumed in
// index order by RoiTracker and dropped after use; nothing is cached here.
func (s *Sequence) At(i int) (*capture.Frame, error) {
	if i < 0 || i >= len(s.paths) {
		return nil, fmt.Errorf("frame index %d out of range [0,%d)", i, len(s.paths))
	}
	pts := float64(i) / s.fps
	return loadFrame(s.paths[i], i, pts)
}

func loadFrame(path string, index int, ptsSec float64) (*capture.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	return &capture.Frame{
		Index:  index,
		PTSSec: ptsSec,
		Image:  toRGBImage(img),
	}, nil
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
