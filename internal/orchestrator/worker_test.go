package orchestrator_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/metrics"
	"github.com/sheetcap/sheetcap/internal/orchestrator"
)

// fakeRunner lets tests control what Run does without a real pipeline.
type fakeRunner struct {
	runFunc func(ctx context.Context, job *capture.Job) error
}

func (f *fakeRunner) Run(ctx context.Context, job *capture.Job) error {
	return f.runFunc(ctx, job)
}

func waitForTerminal(t *testing.T, q *orchestrator.Queue, id string) *capture.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := q.Get(id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for job to reach a terminal state")
	return nil
}

func TestWorkerPoolRunsQueuedJobToCompletion(t *testing.T) {
	q, _ := newTestQueue(t)
	runner := &fakeRunner{runFunc: func(ctx context.Context, job *capture.Job) error {
		return nil
	}}

	pool := orchestrator.NewWorkerPool(q, runner, 1, metrics.New())
	pool.Start()
	defer pool.Stop()

	job := testJob("/media/v1.mp4")
	if err := q.Add(job); err != nil {
		t.Fatalf("add job: %v", err)
	}

	done := waitForTerminal(t, q, job.ID)
	if done.State != capture.StateDone {
		t.Errorf("expected state done, got %s", done.State)
	}
	if done.Step != capture.StepDone {
		t.Errorf("expected step done, got %s", done.Step)
	}
}

func TestWorkerPoolRunFailureRollsUpToErrorState(t *testing.T) {
	q, _ := newTestQueue(t)
	stageErr := capture.NewStageError(capture.CodeDecodeFailed, errors.New("boom"))
	runner := &fakeRunner{runFunc: func(ctx context.Context, job *capture.Job) error {
		return stageErr
	}}

	pool := orchestrator.NewWorkerPool(q, runner, 1, metrics.New())
	pool.Start()
	defer pool.Stop()

	job := testJob("/media/v1.mp4")
	q.Add(job)

	done := waitForTerminal(t, q, job.ID)
	if done.State != capture.StateError {
		t.Errorf("expected state error, got %s", done.State)
	}
	if done.ErrorCode != capture.CodeDecodeFailed {
		t.Errorf("expected error code decode_failed, got %s", done.ErrorCode)
	}
}

func TestWorkerPoolCancelJobMarksCancelledNotError(t *testing.T) {
	q, _ := newTestQueue(t)
	started := make(chan struct{})
	runner := &fakeRunner{runFunc: func(ctx context.Context, job *capture.Job) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}}

	pool := orchestrator.NewWorkerPool(q, runner, 1, metrics.New())
	pool.Start()
	defer pool.Stop()

	job := testJob("/media/v1.mp4")
	q.Add(job)

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for job to start running")
	}

	if !pool.CancelJob(job.ID) {
		t.Fatal("expected CancelJob to find the running job")
	}

	done := waitForTerminal(t, q, job.ID)
	if done.State != capture.StateCancelled {
		t.Errorf("expected state cancelled, got %s (code %s)", done.State, done.ErrorCode)
	}
}

func TestWorkerPoolCancelJobUnknownIDReturnsFalse(t *testing.T) {
	q, _ := newTestQueue(t)
	runner := &fakeRunner{runFunc: func(ctx context.Context, job *capture.Job) error { return nil }}

	pool := orchestrator.NewWorkerPool(q, runner, 1, metrics.New())
	pool.Start()
	defer pool.Stop()

	if pool.CancelJob("nonexistent") {
		t.Error("expected CancelJob to return false for unknown job")
	}
}

func TestWorkerPoolParallelismClampedToOne(t *testing.T) {
	q, _ := newTestQueue(t)
	runner := &fakeRunner{runFunc: func(ctx context.Context, job *capture.Job) error { return nil }}

	pool := orchestrator.NewWorkerPool(q, runner, 0, metrics.New())
	pool.Start()
	defer pool.Stop()

	job := testJob("/media/v1.mp4")
	q.Add(job)
	waitForTerminal(t, q, job.ID)
}
