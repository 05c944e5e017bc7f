package metrics_test

import (
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/sheetcap/sheetcap/internal/metrics"
)

func TestStageTimerRecordsObservation(t *testing.T) {
	m := metrics.New()

	stop := m.StageTimer("extracting")
	stop()

	metric := &dto.Metric{}
	collected, err := m.StageDuration.GetMetricWithLabelValues("extracting")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	if err := collected.(interface{ Write(*dto.Metric) error }).Write(metric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if metric.GetHistogram().GetSampleCount() != 1 {
		t.Errorf("expected one observation, got %d", metric.GetHistogram().GetSampleCount())
	}
}

func TestGPUHoldGaugeTracksAcquireRelease(t *testing.T) {
	m := metrics.New()

	m.RecordGPUAcquired()
	metric := &dto.Metric{}
	m.GPUHeld.(interface{ Write(*dto.Metric) error }).Write(metric)
	if metric.GetGauge().GetValue() != 1 {
		t.Errorf("expected gauge 1 after acquire, got %v", metric.GetGauge().GetValue())
	}

	m.RecordGPUReleased()
	metric = &dto.Metric{}
	m.GPUHeld.(interface{ Write(*dto.Metric) error }).Write(metric)
	if metric.GetGauge().GetValue() != 0 {
		t.Errorf("expected gauge 0 after release, got %v", metric.GetGauge().GetValue())
	}
}

func TestRecordUpscaleBackendIncrementsCounter(t *testing.T) {
	m := metrics.New()

	m.RecordUpscaleBackend("hat")
	m.RecordUpscaleBackend("hat")

	counter, err := m.UpscaleBackendTotal.GetMetricWithLabelValues("hat")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	metric := &dto.Metric{}
	counter.(interface{ Write(*dto.Metric) error }).Write(metric)
	if metric.GetCounter().GetValue() != 2 {
		t.Errorf("expected counter 2, got %v", metric.GetCounter().GetValue())
	}
}
