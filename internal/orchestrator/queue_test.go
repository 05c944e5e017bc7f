package orchestrator_test

import (
	"testing"
	"time"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/orchestrator"
	"github.com/sheetcap/sheetcap/internal/store"
)

func newTestQueue(t *testing.T) (*orchestrator.Queue, store.Store) {
	t.Helper()
	dbPath := t.TempDir() + "/test.db"
	st, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	q, err := orchestrator.NewQueue(st)
	if err != nil {
		t.Fatalf("create queue: %v", err)
	}
	return q, st
}

func testJob(path string) *capture.Job {
	return &capture.Job{
		Source:    capture.SourceDescriptor{LocalPath: path},
		CreatedAt: time.Now(),
	}
}

func TestQueueAddAssignsIDAndQueuesState(t *testing.T) {
	q, _ := newTestQueue(t)

	job := testJob("/media/video1.mp4")
	if err := q.Add(job); err != nil {
		t.Fatalf("add job: %v", err)
	}

	if job.ID == "" {
		t.Error("expected job ID to be assigned")
	}
	if job.State != capture.StateQueued {
		t.Errorf("expected state queued, got %s", job.State)
	}

	got, err := q.Get(job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Source.Path() != job.Source.Path() {
		t.Errorf("expected source path %s, got %s", job.Source.Path(), got.Source.Path())
	}
}

func TestQueueGetMissingReturnsNotFound(t *testing.T) {
	q, _ := newTestQueue(t)

	if _, err := q.Get("nonexistent"); err == nil {
		t.Error("expected error for missing job")
	}
}

func TestQueueGetNextReturnsOldestQueued(t *testing.T) {
	q, _ := newTestQueue(t)

	job1 := testJob("/media/v1.mp4")
	job2 := testJob("/media/v2.mp4")
	q.Add(job1)
	q.Add(job2)

	next := q.GetNext()
	if next == nil || next.ID != job1.ID {
		t.Fatalf("expected job1 first, got %+v", next)
	}

	next.State = capture.StateRunning
	q.Update(next, "started")

	next = q.GetNext()
	if next == nil || next.ID != job2.ID {
		t.Fatalf("expected job2 next, got %+v", next)
	}
}

func TestQueueGetNextEmptyReturnsNil(t *testing.T) {
	q, _ := newTestQueue(t)
	if q.GetNext() != nil {
		t.Error("expected nil from empty queue")
	}
}

func TestQueueDeleteRemovesJob(t *testing.T) {
	q, _ := newTestQueue(t)

	job := testJob("/media/v1.mp4")
	q.Add(job)

	if err := q.Delete(job.ID); err != nil {
		t.Fatalf("delete job: %v", err)
	}
	if _, err := q.Get(job.ID); err == nil {
		t.Error("expected error getting deleted job")
	}
}

func TestQueuePersistsAcrossReload(t *testing.T) {
	q, st := newTestQueue(t)

	job := testJob("/media/v1.mp4")
	q.Add(job)
	next := q.GetNext()
	next.State = capture.StateRunning
	q.Update(next, "started")

	q2, err := orchestrator.NewQueue(st)
	if err != nil {
		t.Fatalf("reload queue: %v", err)
	}

	got, err := q2.Get(job.ID)
	if err != nil {
		t.Fatalf("get reloaded job: %v", err)
	}
	// A job caught mid-run at reload time is reset to queued, mirroring a
	// restart after an unclean shutdown.
	if got.State != capture.StateQueued {
		t.Errorf("expected reloaded running job reset to queued, got %s", got.State)
	}
	if got.Step != capture.StepInitializing {
		t.Errorf("expected step reset to initializing, got %s", got.Step)
	}
}

func TestQueueSubscribeReceivesEvents(t *testing.T) {
	q, _ := newTestQueue(t)
	ch := q.Subscribe()
	defer q.Unsubscribe(ch)

	job := testJob("/media/v1.mp4")
	if err := q.Add(job); err != nil {
		t.Fatalf("add job: %v", err)
	}

	select {
	case ev := <-ch:
		if ev.Type != "added" {
			t.Errorf("expected event type added, got %s", ev.Type)
		}
		if ev.Job.ID != job.ID {
			t.Error("event job ID mismatch")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for added event")
	}
}

func TestQueueGetAllPreservesSubmissionOrder(t *testing.T) {
	q, _ := newTestQueue(t)

	job1 := testJob("/media/v1.mp4")
	job2 := testJob("/media/v2.mp4")
	job3 := testJob("/media/v3.mp4")
	q.Add(job1)
	q.Add(job2)
	q.Add(job3)

	all := q.GetAll()
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
	if all[0].ID != job1.ID || all[1].ID != job2.ID || all[2].ID != job3.ID {
		t.Error("expected jobs in submission order")
	}
}
