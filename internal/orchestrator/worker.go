package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/sheetcap/sheetcap/internal/capture"
	"github.com/sheetcap/sheetcap/internal/logger"
	"github.com/sheetcap/sheetcap/internal/metrics"
)

// Runner executes the full pipeline for job, observing ctx for
// cancellation at stage checkpoints.
type Runner interface {
	Run(ctx context.Context, job *capture.Job) error
}

// Worker pulls jobs off the queue and runs them one at a time.
type Worker struct {
	id     int
	pool   *WorkerPool
	queue  *Queue
	runner Runner

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	currentMu  sync.Mutex
	currentID  string
	jobCancel  context.CancelFunc
	jobDone    chan struct{}
}

// WorkerPool runs up to parallelism jobs concurrently, pulling from a
// shared Queue.
type WorkerPool struct {
	mu      sync.Mutex
	workers []*Worker
	queue   *Queue
	runner  Runner
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorkerPool creates a pool of parallelism workers (minimum 1), all
// sharing queue and runner.
func NewWorkerPool(queue *Queue, runner Runner, parallelism int, m *metrics.Metrics) *WorkerPool {
	if parallelism < 1 {
		parallelism = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	p := &WorkerPool{
		queue:   queue,
		runner:  runner,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < parallelism; i++ {
		p.workers = append(p.workers, p.createWorker(i))
	}
	return p
}

func (p *WorkerPool) createWorker(id int) *Worker {
	return &Worker{
		id:     id,
		pool:   p,
		queue:  p.queue,
		runner: p.runner,
	}
}

// Start launches every worker's processing loop.
func (p *WorkerPool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range p.workers {
		w.Start(p.ctx)
	}
}

// Stop cancels the pool context (which also cancels any job a worker is
// running) and blocks until every worker has returned.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.mu.Lock()
	workers := append([]*Worker(nil), p.workers...)
	p.mu.Unlock()
	for _, w := range workers {
		w.Stop()
	}
}

// Resize grows or shrinks the pool to parallelism workers (minimum 1),
// for a config hot-reload that changes worker parallelism without a
// process restart. Shrinking stops the excess workers outright, cancelling
// whatever job each currently holds the same way CancelJob would.
func (p *WorkerPool) Resize(parallelism int) {
	if parallelism < 1 {
		parallelism = 1
	}

	p.mu.Lock()
	current := len(p.workers)
	if parallelism == current {
		p.mu.Unlock()
		return
	}

	if parallelism < current {
		toStop := append([]*Worker(nil), p.workers[parallelism:]...)
		p.workers = p.workers[:parallelism]
		p.mu.Unlock()
		for _, w := range toStop {
			w.Stop()
		}
		return
	}

	added := make([]*Worker, 0, parallelism-current)
	for i := current; i < parallelism; i++ {
		added = append(added, p.createWorker(i))
	}
	p.workers = append(p.workers, added...)
	ctx := p.ctx
	p.mu.Unlock()

	for _, w := range added {
		w.Start(ctx)
	}
}

// CancelJob requests cancellation of jobID if a worker currently holds it.
func (p *WorkerPool) CancelJob(jobID string) bool {
	p.mu.Lock()
	workers := append([]*Worker(nil), p.workers...)
	p.mu.Unlock()

	for _, w := range workers {
		if w.CancelCurrent(jobID) {
			return true
		}
	}
	return false
}

// Start begins this worker's pull loop under parentCtx.
func (w *Worker) Start(parentCtx context.Context) {
	w.ctx, w.cancel = context.WithCancel(parentCtx)
	w.wg.Add(1)
	go w.run()
}

// Stop cancels this worker's loop and waits for it to exit.
func (w *Worker) Stop() {
	w.cancel()
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		job := w.queue.GetNext()
		if job == nil {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(250 * time.Millisecond):
				continue
			}
		}

		w.processJob(job)
	}
}

func (w *Worker) processJob(job *capture.Job) {
	jobCtx, jobCancel := context.WithCancel(w.ctx)
	done := make(chan struct{})

	w.currentMu.Lock()
	w.currentID = job.ID
	w.jobCancel = jobCancel
	w.jobDone = done
	w.currentMu.Unlock()

	defer func() {
		close(done)
		w.currentMu.Lock()
		w.currentID = ""
		w.jobCancel = nil
		w.jobDone = nil
		w.currentMu.Unlock()
		jobCancel()
	}()

	jobLog := logger.With("job_id", job.ID, "worker", w.id)

	job.State = capture.StateRunning
	job.StartedAt = time.Now()
	w.queue.Update(job, "started")
	jobLog.Info("job started")

	if w.pool.metrics != nil {
		w.pool.metrics.JobsInFlight.Inc()
		defer w.pool.metrics.JobsInFlight.Dec()
	}

	err := w.runner.Run(jobCtx, job)
	job.FinishedAt = time.Now()

	switch {
	case jobCtx.Err() != nil:
		job.Cancel()
		w.queue.Update(job, "cancelled")
		jobLog.Info("job cancelled")
		if w.pool.metrics != nil {
			w.pool.metrics.RecordJobTerminal(string(job.State))
		}
	case err != nil:
		stageErr := capture.AsStageError(err)
		job.Fail(stageErr)
		jobLog.Warn("job failed", "error_code", stageErr.Code, "err", err)
		w.queue.Update(job, "error")
		if w.pool.metrics != nil {
			w.pool.metrics.RecordJobTerminal(string(job.State))
		}
	default:
		job.Complete()
		w.queue.Update(job, "done")
		jobLog.Info("job done", "duration", job.FinishedAt.Sub(job.StartedAt))
		if w.pool.metrics != nil {
			w.pool.metrics.RecordJobTerminal(string(job.State))
		}
	}
}

// CancelCurrent cancels the worker's current job if its ID matches,
// returning true if a cancellation was issued.
func (w *Worker) CancelCurrent(jobID string) bool {
	w.currentMu.Lock()
	defer w.currentMu.Unlock()
	if w.currentID != jobID || w.jobCancel == nil {
		return false
	}
	w.jobCancel()
	return true
}
