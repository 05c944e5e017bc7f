// Package orchestrator implements C8 JobOrchestrator: the job queue,
// worker pool, and per-job pipeline that sequences FrameSource through
// PageComposer and publishes progress/cancellation/review operations.
package orchestrator

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/logger"
	"github.com/sheetcap/sheetcap/internal/store"
)

// Event is published to queue subscribers (the SSE progress stream) on
// each Add, Update and Mutate call; progress changes within a run are not
// published on their own.
type Event struct {
	Type string       `json:"type"` // "added", "started", "done", "error", "cancelled", "review_export"
	Job  *capture.Job `json:"job"`
}

// Queue owns the set of jobs known to the process, persisting them via
// Store and broadcasting changes to subscribers.
type Queue struct {
	mu    sync.RWMutex
	jobs  map[string]*capture.Job
	order []string
	store store.Store

	cumSeconds float64
	cumBytes   int64

	subsMu      sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewQueue creates a Queue backed by st, reloading any previously
// persisted jobs. Jobs found mid-run (interrupted by a restart) are reset
// to queued, mirroring the teacher's queue.load() recovery behavior.
func NewQueue(st store.Store) (*Queue, error) {
	q := &Queue{
		jobs:        make(map[string]*capture.Job),
		store:       st,
		subscribers: make(map[chan Event]struct{}),
	}

	existing, err := st.List()
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	for _, job := range existing {
		if job.State == capture.StateRunning {
			job.State = capture.StateQueued
			job.Step = capture.StepInitializing
			job.Progress = 0
		}
		q.jobs[job.ID] = job
	}
	// Store.List returns newest-first; queue order should be oldest-first
	// (submission order) so workers drain FIFO.
	for i := len(existing) - 1; i >= 0; i-- {
		q.order = append(q.order, existing[i].ID)
	}

	return q, nil
}

// Add creates and persists a new queued job.
func (q *Queue) Add(job *capture.Job) error {
	q.mu.Lock()
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.State = capture.StateQueued
	job.Step = capture.StepInitializing
	q.jobs[job.ID] = job
	q.order = append(q.order, job.ID)
	q.mu.Unlock()

	if err := q.persist(job); err != nil {
		return err
	}
	q.broadcast(Event{Type: "added", Job: job.Copy()})
	return nil
}

// Get returns a snapshot copy of the job, safe to read without racing the
// worker that owns the live job.
func (q *Queue) Get(id string) (*capture.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, capture.JobNotFoundError(id)
	}
	return job.Copy(), nil
}

// live returns the job pointer the worker is allowed to mutate directly.
// Callers must hold no other lock while mutating; Update persists after.
func (q *Queue) live(id string) (*capture.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return nil, capture.JobNotFoundError(id)
	}
	return job, nil
}

// Mutate applies fn to the live job identified by id (the same pointer the
// worker would mutate mid-run) and persists the result under eventType, for
// callers outside the worker — the API's cancel and review-export
// handlers — that need their change to stick in GetAll/Get afterward rather
// than silently mutate a throwaway Get snapshot.
func (q *Queue) Mutate(id, eventType string, fn func(*capture.Job) error) (*capture.Job, error) {
	job, err := q.live(id)
	if err != nil {
		return nil, err
	}
	if err := fn(job); err != nil {
		return nil, err
	}
	q.Update(job, eventType)
	return job.Copy(), nil
}

// GetAll returns snapshot copies of every job, in submission order.
func (q *Queue) GetAll() []*capture.Job {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]*capture.Job, 0, len(q.order))
	for _, id := range q.order {
		if job, ok := q.jobs[id]; ok {
			out = append(out, job.Copy())
		}
	}
	return out
}

// Stats summarizes the queue's jobs by state, for GET /runtime.
type Stats struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Done      int `json:"done"`
	Error     int `json:"error"`
	Cancelled int `json:"cancelled"`

	// SecondsProcessed and BytesProcessed accumulate across every job that
	// has ever reached StateDone, for the life of the process (reset on
	// restart, same as the teacher's in-memory queue stats).
	SecondsProcessed float64 `json:"seconds_processed"`
	BytesProcessed   int64   `json:"bytes_processed"`
}

// Stats returns a point-in-time count of jobs by state.
func (q *Queue) Stats() Stats {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var s Stats
	for _, id := range q.order {
		job, ok := q.jobs[id]
		if !ok {
			continue
		}
		s.Total++
		switch job.State {
		case capture.StateQueued:
			s.Queued++
		case capture.StateRunning:
			s.Running++
		case capture.StateDone:
			s.Done++
		case capture.StateError:
			s.Error++
		case capture.StateCancelled:
			s.Cancelled++
		}
	}
	s.SecondsProcessed = q.cumSeconds
	s.BytesProcessed = q.cumBytes
	return s
}

// GetNext returns the oldest job still in the queued state, or nil.
func (q *Queue) GetNext() *capture.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		if job, ok := q.jobs[id]; ok && job.State == capture.StateQueued {
			return job
		}
	}
	return nil
}

// Update persists the current in-memory state of job (identified by ID)
// and broadcasts eventType to subscribers. Callers mutate the pointer
// returned by live/GetNext directly, then call Update to publish it.
func (q *Queue) Update(job *capture.Job, eventType string) error {
	if err := q.persist(job); err != nil {
		logger.Warn("failed to persist job", "job_id", job.ID, "err", err)
	}
	if eventType == "done" {
		q.mu.Lock()
		q.cumSeconds += job.Manifest.SourceDurationSeconds
		q.cumBytes += job.Manifest.OutputBytes
		q.mu.Unlock()
	}
	q.broadcast(Event{Type: eventType, Job: job.Copy()})
	return nil
}

// Delete removes a job from the queue and its backing store.
func (q *Queue) Delete(id string) error {
	q.mu.Lock()
	if _, ok := q.jobs[id]; !ok {
		q.mu.Unlock()
		return capture.JobNotFoundError(id)
	}
	delete(q.jobs, id)
	newOrder := make([]string, 0, len(q.order))
	for _, existing := range q.order {
		if existing != id {
			newOrder = append(newOrder, existing)
		}
	}
	q.order = newOrder
	q.mu.Unlock()

	return q.store.Delete(id)
}

func (q *Queue) persist(job *capture.Job) error {
	if q.store == nil {
		return nil
	}
	return q.store.Put(job)
}

// Subscribe returns a channel that receives every subsequent Event.
func (q *Queue) Subscribe() chan Event {
	ch := make(chan Event, 64)
	q.subsMu.Lock()
	q.subscribers[ch] = struct{}{}
	q.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a previously Subscribed channel.
func (q *Queue) Unsubscribe(ch chan Event) {
	q.subsMu.Lock()
	delete(q.subscribers, ch)
	q.subsMu.Unlock()
	close(ch)
}

func (q *Queue) broadcast(e Event) {
	q.subsMu.RLock()
	defer q.subsMu.RUnlock()
	for ch := range q.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
