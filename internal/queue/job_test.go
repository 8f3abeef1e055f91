package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgnsrekt/storyreel/internal/encoder"
	"github.com/dgnsrekt/storyreel/internal/media"
)

func TestNewRenderJob(t *testing.T) {
	input := encoder.Job{SRT: "1\n00:00:00,000 --> 00:00:01,000\nHi\n\n"}
	job := NewRenderJob(input, 5*time.Second)

	if job.ID == "" {
		t.Error("expected non-empty job ID")
	}
	if job.Input.SRT != input.SRT {
		t.Errorf("expected input to be kept, got %q", job.Input.SRT)
	}
	if job.TTL != 5*time.Second {
		t.Errorf("expected TTL 5s, got %v", job.TTL)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected non-zero created_at")
	}
	if job.ExpiresAt.IsZero() {
		t.Error("expected non-zero expires_at when TTL is set")
	}
}

func TestNewRenderJobNoTTL(t *testing.T) {
	job := NewRenderJob(encoder.Job{}, 0)

	if !job.ExpiresAt.IsZero() {
		t.Error("expected zero expires_at when TTL is zero")
	}
}

func TestIsExpired(t *testing.T) {
	// Job with no TTL never expires
	job := NewRenderJob(encoder.Job{}, 0)
	if job.IsExpired() {
		t.Error("job with no TTL should not be expired")
	}

	// Job with future expiry
	job = NewRenderJob(encoder.Job{}, time.Hour)
	if job.IsExpired() {
		t.Error("job with future expiry should not be expired")
	}

	// Job with past expiry
	job = NewRenderJob(encoder.Job{}, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if !job.IsExpired() {
		t.Error("job with past expiry should be expired")
	}
}

func TestJobIDsAreUnique(t *testing.T) {
	job1 := NewRenderJob(encoder.Job{}, 0)
	job2 := NewRenderJob(encoder.Job{}, 0)

	if job1.ID == job2.ID {
		t.Error("expected unique job IDs")
	}
}

func TestJobFinishOnce(t *testing.T) {
	job := NewRenderJob(encoder.Job{}, 0)
	want := &media.Blob{Data: []byte{1}, MIMEType: "video/mp4"}

	if !job.finish(want, nil) {
		t.Fatal("first finish should take effect")
	}
	if job.finish(nil, errors.New("late")) {
		t.Error("second finish should be ignored")
	}

	got, err := job.Wait(context.Background())
	if err != nil || got != want {
		t.Errorf("Wait() = %v, %v; want first result", got, err)
	}
}

func TestJobWaitContext(t *testing.T) {
	job := NewRenderJob(encoder.Job{}, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := job.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	select {
	case <-job.Done():
		t.Error("job should not be done")
	default:
	}
}
