package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sheetcap/sheetcap/internal/logger"
	"github.com/sheetcap/sheetcap/internal/procutil"
)

// ErrFfmpegMissing is returned when the configured ffmpeg binary cannot be
// found or executed at all.
var ErrFfmpegMissing = errors.New("ffmpeg binary not found")

// ErrEmptyRange is returned when end_sec <= start_sec.
var ErrEmptyRange = errors.New("empty time range")

// ExtractProgress reports decode progress parsed from ffmpeg's
// "-progress pipe:1" key=value stream.
type ExtractProgress struct {
	Frame   int64
	FPS     float64
	OutTime time.Duration
	Speed   float64
}

// ExtractResult summarizes a completed extraction.
type ExtractResult struct {
	FrameCount int
	OutputDir  string
	UsedAccel  HWAccel
}

// Extractor runs ffmpeg as a child process to decode a time-bounded slice
// of a video into sequentially numbered frame image files.
type Extractor struct {
	ffmpegPath string
	probe      *HWAccelProbe
}

// NewExtractor creates an Extractor bound to the given ffmpeg binary and
// hwaccel probe.
func NewExtractor(ffmpegPath string, probe *HWAccelProbe) *Extractor {
	return &Extractor{ffmpegPath: ffmpegPath, probe: probe}
}

// Extract decodes [startSec, endSec) of videoPath at samplingFPS into
// sequentially numbered PNG frames under outputDir, reporting progress on
// progressCh (closed when Extract returns). It chooses a hardware
// decode path from the probe, retrying once with software decode on
// failure, per the decode retry policy.
func (e *Extractor) Extract(ctx context.Context, videoPath string, startSec, endSec, samplingFPS float64, outputDir string, hwaccelPref string, progressCh chan<- ExtractProgress) (*ExtractResult, error) {
	defer close(progressCh)
	if endSec <= startSec {
		return nil, ErrEmptyRange
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	accel := e.probe.SelectDecode(hwaccelPref)

	var result *ExtractResult
	policy := backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 1)
	attempt := 0
	op := func() error {
		useAccel := accel
		if attempt > 0 {
			useAccel = HWAccelNone
			logger.Warn("ffmpeg decode failed, retrying with software decode", "video", videoPath)
		}
		attempt++
		r, err := e.runExtract(ctx, videoPath, startSec, endSec, samplingFPS, outputDir, useAccel, progressCh)
		if err != nil {
			return err
		}
		result = r
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return nil, fmt.Errorf("decode failed: %w", err)
	}
	return result, nil
}

func (e *Extractor) runExtract(ctx context.Context, videoPath string, startSec, endSec, samplingFPS float64, outputDir string, accel HWAccel, progressCh chan<- ExtractProgress) (*ExtractResult, error) {
	pattern := filepath.Join(outputDir, "frame_%08d.png")

	args := []string{}
	if accel != HWAccelNone {
		args = append(args, "-hwaccel", string(accel))
	}
	args = append(args,
		"-ss", formatSeconds(startSec),
		"-to", formatSeconds(endSec),
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%g", samplingFPS),
		"-y",
		"-progress", "pipe:1",
		"-nostats",
		pattern,
	)

	cmd := exec.Command(e.ffmpegPath, args...)
	procutil.SetupProcessGroup(cmd)
	logger.Debug("ffmpeg extract command", "args", strings.Join(args, " "))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, ErrFfmpegMissing
		}
		return nil, err
	}

	parsed := make(chan struct{})
	go func() {
		parseProgress(stdout, progressCh)
		close(parsed)
	}()

	waitDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			procutil.Terminate(cmd, waitDone)
		case <-waitDone:
		}
	}()

	<-parsed
	err = cmd.Wait()
	close(waitDone)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg exited: %w", err)
	}

	frames, err := filepath.Glob(filepath.Join(outputDir, "frame_*.png"))
	if err != nil {
		return nil, err
	}

	return &ExtractResult{FrameCount: len(frames), OutputDir: outputDir, UsedAccel: accel}, nil
}

// ExtractPreview selects the nearest key frame at-or-before atSec and
// decodes it to a single image at previewPath, retrying at t=0 on failure.
func (e *Extractor) ExtractPreview(ctx context.Context, videoPath string, atSec float64, previewPath string) error {
	if err := e.extractPreviewAt(ctx, videoPath, atSec, previewPath); err != nil {
		if atSec == 0 {
			return err
		}
		logger.Warn("preview extract failed, retrying at t=0", "video", videoPath, "err", err)
		return e.extractPreviewAt(ctx, videoPath, 0, previewPath)
	}
	return nil
}

func (e *Extractor) extractPreviewAt(ctx context.Context, videoPath string, atSec float64, previewPath string) error {
	args := []string{
		"-ss", formatSeconds(atSec),
		"-i", videoPath,
		"-frames:v", "1",
		"-y",
		previewPath,
	}
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return ErrFfmpegMissing
		}
		return fmt.Errorf("preview extract failed: %w", err)
	}
	return nil
}

func parseProgress(stdout io.Reader, progressCh chan<- ExtractProgress) {
	scanner := bufio.NewScanner(stdout)
	var cur ExtractProgress
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key, value := line[:idx], line[idx+1:]
		switch key {
		case "frame":
			cur.Frame, _ = strconv.ParseInt(value, 10, 64)
		case "fps":
			cur.FPS, _ = strconv.ParseFloat(value, 64)
		case "out_time_us":
			if value != "N/A" {
				us, _ := strconv.ParseInt(value, 10, 64)
				cur.OutTime = time.Duration(us) * time.Microsecond
			}
		case "speed":
			v := strings.TrimSuffix(value, "x")
			cur.Speed, _ = strconv.ParseFloat(strings.TrimSpace(v), 64)
		case "progress":
			progressCh <- cur
		}
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
