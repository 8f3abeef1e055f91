package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs the sweeper every fifteen minutes.
const DefaultSweepSchedule = "@every 15m"

// Sweeper periodically removes stale job directories.
type Sweeper struct {
	enc    *Encoder
	maxAge time.Duration
	logger *slog.Logger
	cron   *cron.Cron
}

// NewSweeper schedules enc.Sweep(maxAge) on a cron schedule such as
// "@every 15m" or "0 * * * *".
func NewSweeper(enc *Encoder, schedule string, maxAge time.Duration, logger *slog.Logger) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s := &Sweeper{
		enc:    enc,
		maxAge: maxAge,
		logger: logger,
		cron:   cron.New(),
	}
	if _, err := s.cron.AddFunc(schedule, s.RunNow); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start runs the schedule in the background.
func (s *Sweeper) Start() {
	s.logger.Info("starting job directory sweeper", "max_age", s.maxAge)
	s.cron.Start()
}

// Stop halts the schedule and waits for a running sweep to finish or for
// ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunNow sweeps immediately.
func (s *Sweeper) RunNow() {
	removed, err := s.enc.Sweep(s.maxAge)
	if err != nil {
		s.logger.Warn("sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("swept stale job directories", "removed", removed)
	}
}
