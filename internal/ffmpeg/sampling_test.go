package ffmpeg_test

import (
	"testing"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/ffmpeg"
)

func TestSamplingFPSTable(t *testing.T) {
	cases := []struct {
		sensitivity capture.Sensitivity
		want        float64
	}{
		{capture.SensitivityLow, 0.6},
		{capture.SensitivityMedium, 1.0},
		{capture.SensitivityHigh, 1.8},
		{capture.Sensitivity("bogus"), 1.0},
	}
	for _, tc := range cases {
		if got := ffmpeg.SamplingFPS(tc.sensitivity); got != tc.want {
			t.Errorf("SamplingFPS(%s) = %f, want %f", tc.sensitivity, got, tc.want)
		}
	}
}
