// Package ffmpeg wraps the ffprobe/ffmpeg child processes: source metadata
// probing, decode-side hardware-acceleration capability detection, and the
// frame-extraction child process used by the frame package.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ProbeResult contains the metadata about a source video relevant to
// frame extraction.
type ProbeResult struct {
	Path       string        `json:"path"`
	Duration   time.Duration `json:"duration"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FrameRate  float64       `json:"frame_rate"`
	VideoCodec string        `json:"video_codec"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

type ffprobeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

// Prober wraps ffprobe.
type Prober struct {
	ffprobePath string
}

// NewProber creates a Prober bound to the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// Probe returns metadata about a video file.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var probeOut ffprobeOutput
	if err := json.Unmarshal(out, &probeOut); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &ProbeResult{Path: path}

	if d, err := strconv.ParseFloat(probeOut.Format.Duration, 64); err == nil {
		result.Duration = time.Duration(d * float64(time.Second))
	}

	for _, s := range probeOut.Streams {
		if s.CodecType != "video" {
			continue
		}
		result.Width = s.Width
		result.Height = s.Height
		result.VideoCodec = s.CodecName
		result.FrameRate = parseFrameRate(s.AvgFrameRate, s.RFrameRate)
		break
	}

	return result, nil
}

func parseFrameRate(avg, r string) float64 {
	if fr, ok := parseFraction(avg); ok && fr > 0 {
		return fr
	}
	if fr, ok := parseFraction(r); ok {
		return fr
	}
	return 0
}

func parseFraction(s string) (float64, bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, false
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0, false
	}
	return num / den, true
}
