package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgnsrekt/storyreel/internal/encoder"
	"github.com/dgnsrekt/storyreel/internal/media"
)

// RenderJob is an encode job waiting in, or running on, the queue.
type RenderJob struct {
	ID        string
	Input     encoder.Job
	TTL       time.Duration
	CreatedAt time.Time
	ExpiresAt time.Time

	done   chan struct{}
	once   sync.Once
	result *media.Blob
	err    error
}

// NewRenderJob creates a job with a unique ID. A positive ttl bounds how
// long the job may wait before the worker picks it up.
func NewRenderJob(input encoder.Job, ttl time.Duration) *RenderJob {
	now := time.Now()
	job := &RenderJob{
		ID:        uuid.New().String(),
		Input:     input,
		TTL:       ttl,
		CreatedAt: now,
		done:      make(chan struct{}),
	}

	if ttl > 0 {
		job.ExpiresAt = now.Add(ttl)
	}

	return job
}

// IsExpired returns true if the job has passed its TTL.
func (j *RenderJob) IsExpired() bool {
	if j.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(j.ExpiresAt)
}

// Done is closed once the job has a result.
func (j *RenderJob) Done() <-chan struct{} {
	return j.done
}

// Result returns the job's outcome. It is only meaningful after Done.
func (j *RenderJob) Result() (*media.Blob, error) {
	return j.result, j.err
}

// Wait blocks until the job finishes or ctx is done.
func (j *RenderJob) Wait(ctx context.Context) (*media.Blob, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finish records the outcome. Only the first call has any effect.
func (j *RenderJob) finish(blob *media.Blob, err error) bool {
	finished := false
	j.once.Do(func() {
		j.result, j.err = blob, err
		close(j.done)
		finished = true
	})
	return finished
}
