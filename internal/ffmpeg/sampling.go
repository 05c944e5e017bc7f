package ffmpeg

import "github.com/sheetcap/sheetcap/internal/capture"

// samplingFPSTable is the fixed, discrete sensitivity-to-fps mapping; the
// mapping is deliberately not continuous.
var samplingFPSTable = map[capture.Sensitivity]float64{
	capture.SensitivityLow:    0.6,
	capture.SensitivityMedium: 1.0,
	capture.SensitivityHigh:   1.8,
}

// SamplingFPS returns the fixed sampling rate for a sensitivity, defaulting
// to medium for an unrecognized value.
func SamplingFPS(s capture.Sensitivity) float64 {
	if fps, ok := samplingFPSTable[s]; ok {
		return fps
	}
	return samplingFPSTable[capture.SensitivityMedium]
}
