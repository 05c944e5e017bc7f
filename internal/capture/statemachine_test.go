package capture_test

import (
	"testing"

	"github.com/sheetcap/sheetcap/internal/capture"
)

func TestAdvanceStepForward(t *testing.T) {
	j := &capture.Job{State: capture.StateRunning, Step: capture.StepInitializing}
	order := []capture.Step{
		capture.StepExtracting,
		capture.StepDetecting,
		capture.StepRectifying,
		capture.StepStitching,
		capture.StepUpscaling,
		capture.StepExporting,
		capture.StepDone,
	}
	for _, s := range order {
		if err := j.AdvanceStep(s); err != nil {
			t.Fatalf("advance to %s: %v", s, err)
		}
	}
}

func TestAdvanceStepRejectsBackward(t *testing.T) {
	j := &capture.Job{State: capture.StateRunning, Step: capture.StepUpscaling}
	if err := j.AdvanceStep(capture.StepExtracting); err == nil {
		t.Fatal("expected error moving backward from upscaling to extracting")
	}
}

func TestPageClusterIsAlternativeToStitching(t *testing.T) {
	j := &capture.Job{State: capture.StateRunning, Step: capture.StepRectifying}
	if err := j.AdvanceStep(capture.StepPageCluster); err != nil {
		t.Fatalf("page_cluster should be reachable from rectifying: %v", err)
	}
	if err := j.AdvanceStep(capture.StepUpscaling); err != nil {
		t.Fatalf("upscaling should follow page_cluster: %v", err)
	}
}

func TestReenterUpscalingFromDone(t *testing.T) {
	j := &capture.Job{State: capture.StateDone, Step: capture.StepDone, Progress: 1}
	if err := j.ReenterUpscaling(); err != nil {
		t.Fatalf("review_export re-entry: %v", err)
	}
	if j.State != capture.StateRunning || j.Step != capture.StepUpscaling {
		t.Fatalf("unexpected state after re-entry: %s/%s", j.State, j.Step)
	}
}

func TestReenterUpscalingRejectsNonDone(t *testing.T) {
	j := &capture.Job{State: capture.StateRunning, Step: capture.StepExtracting}
	if err := j.ReenterUpscaling(); err == nil {
		t.Fatal("expected error re-entering upscaling on a non-done job")
	}
}

func TestSetProgressMonotonic(t *testing.T) {
	j := &capture.Job{}
	j.SetProgress(0.5)
	j.SetProgress(0.2) // must not regress
	if j.Progress != 0.5 {
		t.Errorf("expected progress to stay at 0.5, got %f", j.Progress)
	}
	j.SetProgress(0.9)
	if j.Progress != 0.9 {
		t.Errorf("expected progress 0.9, got %f", j.Progress)
	}
}

func TestFailPreservesManifest(t *testing.T) {
	j := &capture.Job{
		State:    capture.StateRunning,
		Manifest: capture.Manifest{Images: []string{"page_001.png"}},
	}
	j.Fail(capture.NewStageError(capture.CodeUpscaleUnavailable, nil))
	if j.State != capture.StateError {
		t.Errorf("expected error state, got %s", j.State)
	}
	if j.ErrorCode != capture.CodeUpscaleUnavailable {
		t.Errorf("expected upscale_unavailable, got %s", j.ErrorCode)
	}
	if len(j.Manifest.Images) != 1 {
		t.Errorf("expected manifest images preserved, got %v", j.Manifest.Images)
	}
}
