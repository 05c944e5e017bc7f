package ffmpeg_test

import (
	"testing"

	"github.com/sheetcap/sheetcap/internal/ffmpeg"
)

func TestSelectDecodeFallsBackToSoftware(t *testing.T) {
	probe := ffmpeg.NewHWAccelProbe("/nonexistent/ffmpeg")
	// Detect is never called, so nothing self-tested; SelectDecode must
	// still resolve to "none" rather than panicking or hanging.
	accel := probe.SelectDecode("auto")
	if accel != ffmpeg.HWAccelNone {
		t.Errorf("expected software fallback, got %s", accel)
	}
}

func TestSelectDecodeIgnoresUnavailablePreference(t *testing.T) {
	probe := ffmpeg.NewHWAccelProbe("/nonexistent/ffmpeg")
	accel := probe.SelectDecode("cuda")
	if accel != ffmpeg.HWAccelNone {
		t.Errorf("expected fallback to software when cuda unavailable, got %s", accel)
	}
}

func TestSelectDecodeHonorsExplicitNone(t *testing.T) {
	probe := ffmpeg.NewHWAccelProbe("/nonexistent/ffmpeg")
	accel := probe.SelectDecode("none")
	if accel != ffmpeg.HWAccelNone {
		t.Errorf("expected none, got %s", accel)
	}
}

func TestListAvailableEmptyBeforeDetect(t *testing.T) {
	probe := ffmpeg.NewHWAccelProbe("/nonexistent/ffmpeg")
	if got := probe.ListAvailable(); len(got) != 0 {
		t.Errorf("expected no available accels before Detect, got %v", got)
	}
}
