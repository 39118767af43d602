package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/config"
	"github.com/dokzlo13/relayd/internal/jobs"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/scheduler"
)

// SchedulerService runs the timer engine and related periodic tasks.
type SchedulerService struct {
	cfg    *config.Config
	engine *scheduler.Scheduler
	jobs   *jobs.Scheduler
	ledger *ledger.Ledger
	loc    *time.Location
}

// NewSchedulerService creates a new SchedulerService.
func NewSchedulerService(
	cfg *config.Config,
	engine *scheduler.Scheduler,
	js *jobs.Scheduler,
	l *ledger.Ledger,
	loc *time.Location,
) *SchedulerService {
	return &SchedulerService{
		cfg:    cfg,
		engine: engine,
		jobs:   js,
		ledger: l,
		loc:    loc,
	}
}

// Start loads stored schedules and begins the dispatcher and periodic tasks.
func (s *SchedulerService) Start(ctx context.Context) error {
	// Cold start: one job per enabled stored schedule
	if err := s.jobs.LoadAll(ctx); err != nil {
		return err
	}

	go func() {
		if err := s.engine.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduler error")
		}
	}()

	if s.ledger != nil {
		go s.runLedgerCleanup(ctx)
	}

	if interval := s.cfg.Log.PrintJobs.Duration(); interval > 0 {
		go s.runPrintJobs(ctx, interval)
	}
	return nil
}

// runLedgerCleanup periodically cleans up old ledger entries.
func (s *SchedulerService) runLedgerCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention()
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(ctx, retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}
		}
	}
}

// runPrintJobs periodically logs the job table.
func (s *SchedulerService) runPrintJobs(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info().Msg("\n" + s.engine.FormatJobs(s.loc))
		}
	}
}
