package capture

import "fmt"

// stepOrder is the forward sequence a running job's Step advances through.
// stitching and page_cluster are alternatives selected by layout hint, not
// both traversed in the same run.
var stepOrder = []Step{
	StepInitializing,
	StepExtracting,
	StepDetecting,
	StepRectifying,
	StepStitching, // or StepPageCluster, same rank
	StepUpscaling,
	StepExporting,
	StepDone,
}

var stepRank = func() map[Step]int {
	m := make(map[Step]int, len(stepOrder)+1)
	for i, s := range stepOrder {
		m[s] = i
	}
	m[StepPageCluster] = m[StepStitching]
	return m
}()

// CanAdvance reports whether transitioning from 'from' to 'to' is a forward
// step (or a same-rank switch between stitching/page_cluster). review_export
// is the sole exception, handled separately by ReenterUpscaling.
func CanAdvance(from, to Step) bool {
	fr, ok := stepRank[from]
	if !ok {
		return false
	}
	tr, ok := stepRank[to]
	if !ok {
		return false
	}
	return tr >= fr
}

// AdvanceStep moves the job to 'to' if it is a legal forward transition,
// otherwise returns an internal error describing the illegal transition.
func (j *Job) AdvanceStep(to Step) error {
	if !CanAdvance(j.Step, to) {
		return NewStageError(CodeInternal, fmt.Errorf("illegal step transition %s -> %s", j.Step, to))
	}
	j.Step = to
	return nil
}

// ReenterUpscaling is the one sanctioned backward transition: review_export
// re-enters upscaling from done.
func (j *Job) ReenterUpscaling() error {
	if j.State != StateDone {
		return JobNotRunningError(j.ID, j.State)
	}
	j.State = StateRunning
	j.Step = StepUpscaling
	j.Progress = 0
	return nil
}

// SetProgress sets Progress, clamped to [0,1] and never allowed to
// regress (a lower value is ignored), preserving the monotonic non-decreasing
// guarantee status readers rely on.
func (j *Job) SetProgress(p float64) {
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	if p < j.Progress {
		return
	}
	j.Progress = p
}

// Fail transitions the job to the error state with a taxonomized code,
// preserving whatever manifest contents already exist.
func (j *Job) Fail(err *StageError) {
	j.State = StateError
	j.ErrorCode = err.Code
	if err.Cause != nil {
		j.ErrorDetail = err.Cause.Error()
	}
}

// Cancel transitions the job to the cancelled terminal state.
func (j *Job) Cancel() {
	j.State = StateCancelled
	j.ErrorCode = CodeCancelled
}

// Complete transitions the job to done at full progress.
func (j *Job) Complete() {
	j.State = StateDone
	j.Step = StepDone
	j.Progress = 1
}
