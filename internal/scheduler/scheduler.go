package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/ghi-aggregation/internal/ingest"
)

// Runner runs one ingestion of the configured feed.
type Runner interface {
	IngestFile(ctx context.Context, path string) (ingest.Report, error)
}

// Scheduler periodically re-ingests the municipality feed.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	feedPath  string
	interval  time.Duration
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a new Scheduler. timeout bounds a single run.
func New(runner Runner, feedPath string, interval, timeout time.Duration, logger *slog.Logger) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		feedPath:  feedPath,
		interval:  interval,
		timeout:   timeout,
		logger:    logger,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run starts immediately; runs never overlap.
func (s *Scheduler) Start() error {
	if s.feedPath == "" || s.interval <= 0 {
		s.logger.Info("scheduler: no feed or interval configured; nothing to schedule")
		return nil
	}

	minutes := int(s.interval.Minutes())
	if minutes <= 0 {
		minutes = 1
	}

	_, err := s.scheduler.Every(minutes).Minutes().SingletonMode().Do(s.run)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

func (s *Scheduler) run() {
	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.Info("scheduler: running ingestion job", "feed", s.feedPath)
	report, err := s.runner.IngestFile(ctx, s.feedPath)
	switch {
	case errors.Is(err, ingest.ErrAlreadyRunning):
		s.logger.Info("scheduler: skipped, ingestion already running")
	case err != nil:
		s.logger.Error("scheduler: ingestion failed", "error", err)
	default:
		s.logger.Info("scheduler: completed ingestion job",
			"run_id", report.RunID.String(),
			"inserted", report.Inserted,
			"failed", report.Failed,
		)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
