// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs the sweep every five minutes.
const DefaultSchedule = "@every 5m"

// StaleJobSweeper fails import jobs left pending since before a cutoff
type StaleJobSweeper interface {
	FailStaleJobs(ctx context.Context, olderThan time.Time) (int64, error)
}

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron       *cron.Cron
	sweeper    StaleJobSweeper
	schedule   string
	staleAfter time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// NewScheduler creates a new job scheduler. Jobs pending longer than
// staleAfter are failed on every tick of schedule.
func NewScheduler(sweeper StaleJobSweeper, schedule string, staleAfter time.Duration, logger *slog.Logger) *Scheduler {
	// Create cron with seconds disabled (standard 5-field format)
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))
	if schedule == "" {
		schedule = DefaultSchedule
	}

	return &Scheduler{
		cron:       c,
		sweeper:    sweeper,
		schedule:   schedule,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.sweepStaleJobs() }); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
		slog.String("schedule", s.schedule),
		slog.Duration("stale_after", s.staleAfter),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// RunNow runs the sweep synchronously and returns how many jobs it failed.
func (s *Scheduler) RunNow() int64 {
	return s.sweepStaleJobs()
}

func (s *Scheduler) sweepStaleJobs() int64 {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.sweeper.FailStaleJobs(ctx, cutoff)
	if err != nil {
		s.logger.Error("failed to sweep stale import jobs", slog.Any("error", err))
		return 0
	}

	s.logger.Debug("stale import job sweep completed",
		slog.Time("cutoff", cutoff),
		slog.Int64("jobs_failed", n),
	)
	return n
}
