// Package queue runs encode jobs one at a time in arrival order.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dgnsrekt/storyreel/internal/media"
)

var (
	// ErrQueueFull is returned when the queue is at capacity.
	ErrQueueFull = errors.New("queue is full")
	// ErrQueueClosed is returned when attempting to enqueue to a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
	// ErrJobExpired is the result of a job that waited longer than its TTL.
	ErrJobExpired = errors.New("job expired before it started")
	// ErrInterrupted is the result of jobs dropped by Interrupt.
	ErrInterrupted = errors.New("job interrupted")
	// ErrNoHandler is the result of jobs run before a handler is set.
	ErrNoHandler = errors.New("no encode handler set")
)

// EncodeHandler is called by the worker to run a job.
type EncodeHandler func(ctx context.Context, job *RenderJob) (*media.Blob, error)

// IdleCallback is called when the queue becomes idle.
type IdleCallback func()

// JobCallback is called after a job has a result.
type JobCallback func(job *RenderJob)

// Queue is a bounded queue with a single encode worker.
type Queue struct {
	mu            sync.Mutex
	jobs          []*RenderJob
	capacity      int
	logger        *slog.Logger
	closed        bool
	idleTimeout   time.Duration
	idleCallback  IdleCallback
	completedFunc JobCallback
	shutdownFunc  func()
	handler       EncodeHandler
	current       *RenderJob
	cancelCurrent context.CancelCauseFunc
	wg            sync.WaitGroup
	stopCh        chan struct{}
	enqueueCh     chan struct{}
}

// NewQueue creates a new bounded queue. A zero idleTimeout disables the
// idle callback.
func NewQueue(capacity int, idleTimeout time.Duration, logger *slog.Logger) *Queue {
	return &Queue{
		jobs:        make([]*RenderJob, 0, capacity),
		capacity:    capacity,
		logger:      logger,
		idleTimeout: idleTimeout,
		stopCh:      make(chan struct{}),
		enqueueCh:   make(chan struct{}, 1),
	}
}

// SetHandler sets the function called to run each job.
func (q *Queue) SetHandler(fn EncodeHandler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = fn
}

// SetIdleCallback sets the function called when the queue becomes idle.
func (q *Queue) SetIdleCallback(fn IdleCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.idleCallback = fn
}

// SetJobCompletedCallback sets the function called after each job the
// worker takes off the queue, whatever its outcome.
func (q *Queue) SetJobCompletedCallback(fn JobCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completedFunc = fn
}

// SetShutdownCallback sets the function Stop calls once the worker has exited.
func (q *Queue) SetShutdownCallback(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shutdownFunc = fn
}

// Enqueue adds a job to the queue.
func (q *Queue) Enqueue(job *RenderJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	if len(q.jobs) >= q.capacity {
		return ErrQueueFull
	}

	q.jobs = append(q.jobs, job)
	q.logger.Debug("job enqueued", "job_id", job.ID, "queue_depth", len(q.jobs))

	// Signal the worker
	select {
	case q.enqueueCh <- struct{}{}:
	default:
	}

	return nil
}

// Cancel abandons a job, whether it is waiting or running. It reports
// whether the job was found.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.current != nil && q.current.ID == id {
		q.cancelCurrent(context.Canceled)
		return true
	}

	for i, job := range q.jobs {
		if job.ID == id {
			q.jobs = append(q.jobs[:i], q.jobs[i+1:]...)
			job.finish(nil, context.Canceled)
			q.logger.Info("job cancelled while waiting", "job_id", id)
			return true
		}
	}
	return false
}

// Interrupt cancels the running job and drops every waiting one.
func (q *Queue) Interrupt() {
	q.mu.Lock()
	defer q.mu.Unlock()
	cleared := q.drainLocked(ErrInterrupted)
	q.logger.Info("queue interrupted", "jobs_cleared", cleared)
}

// drainLocked fails all waiting jobs and the running one with cause.
func (q *Queue) drainLocked(cause error) int {
	if q.cancelCurrent != nil {
		q.cancelCurrent(cause)
	}

	cleared := len(q.jobs)
	for _, job := range q.jobs {
		job.finish(nil, cause)
	}
	q.jobs = q.jobs[:0]
	return cleared
}

// Len returns the number of waiting jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Busy reports whether the worker is running a job.
func (q *Queue) Busy() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// Start begins the worker goroutine.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.worker()
}

// Stop cancels the running job, fails waiting jobs with ErrQueueClosed and
// waits for the worker to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.drainLocked(ErrQueueClosed)
	q.mu.Unlock()

	close(q.stopCh)
	q.wg.Wait()

	q.mu.Lock()
	shutdown := q.shutdownFunc
	q.mu.Unlock()
	if shutdown != nil {
		shutdown()
	}
}

// worker is the single encode goroutine.
func (q *Queue) worker() {
	defer q.wg.Done()

	var idleTimer *time.Timer
	var idleTimerCh <-chan time.Time

	resetIdleTimer := func() {
		if idleTimer != nil {
			idleTimer.Stop()
		}
		if q.idleTimeout > 0 {
			idleTimer = time.NewTimer(q.idleTimeout)
			idleTimerCh = idleTimer.C
		}
	}

	stopIdleTimer := func() {
		if idleTimer != nil {
			idleTimer.Stop()
			idleTimerCh = nil
		}
	}

	for {
		select {
		case <-q.stopCh:
			stopIdleTimer()
			return
		default:
		}

		job := q.dequeue()

		if job != nil {
			stopIdleTimer()
			q.processJob(job)
			continue
		}

		// Queue is empty, start idle timer if not already running
		if idleTimerCh == nil && q.idleTimeout > 0 {
			resetIdleTimer()
		}

		select {
		case <-q.stopCh:
			stopIdleTimer()
			return
		case <-q.enqueueCh:
			continue
		case <-idleTimerCh:
			q.mu.Lock()
			callback := q.idleCallback
			q.mu.Unlock()

			if callback != nil {
				q.logger.Debug("idle timeout reached")
				callback()
			}
			idleTimerCh = nil
		}
	}
}

// dequeue removes and returns the next job that has not expired.
func (q *Queue) dequeue() *RenderJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.jobs) > 0 {
		job := q.jobs[0]
		q.jobs = q.jobs[1:]

		if job.IsExpired() {
			q.logger.Info("dropping expired job", "job_id", job.ID, "ttl", job.TTL)
			job.finish(nil, ErrJobExpired)
			q.notifyLocked(job)
			continue
		}

		return job
	}

	return nil
}

func (q *Queue) notifyLocked(job *RenderJob) {
	if fn := q.completedFunc; fn != nil {
		go fn(job)
	}
}

// processJob runs a single job with cancellation support.
func (q *Queue) processJob(job *RenderJob) {
	q.mu.Lock()
	handler := q.handler
	ctx, cancel := context.WithCancelCause(context.Background())
	q.current = job
	q.cancelCurrent = cancel
	q.mu.Unlock()

	defer func() {
		cancel(nil)
		q.mu.Lock()
		q.current = nil
		q.cancelCurrent = nil
		completed := q.completedFunc
		q.mu.Unlock()
		if completed != nil {
			completed(job)
		}
	}()

	if handler == nil {
		q.logger.Warn("no encode handler set, skipping job", "job_id", job.ID)
		job.finish(nil, ErrNoHandler)
		return
	}

	q.logger.Info("processing job", "job_id", job.ID, "waited", time.Since(job.CreatedAt))

	blob, err := handler(ctx, job)
	if err != nil && ctx.Err() != nil {
		err = context.Cause(ctx)
	}
	job.finish(blob, err)

	switch {
	case err == nil:
		q.logger.Info("job completed", "job_id", job.ID)
	case errors.Is(err, context.Canceled), errors.Is(err, ErrInterrupted), errors.Is(err, ErrQueueClosed):
		q.logger.Info("job cancelled", "job_id", job.ID, "reason", err)
	default:
		q.logger.Error("job failed", "job_id", job.ID, "error", err)
	}
}
