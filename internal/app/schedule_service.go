package app

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/db"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/jobs"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/schedule"
	"github.com/dokzlo13/relayd/internal/scheduler"
	"github.com/dokzlo13/relayd/internal/store"
)

// ScheduleService is the mutation API over schedules and device config.
// Every write reaches the job table before the call returns.
type ScheduleService struct {
	// mu serializes writes so the job table reflects the last returned write.
	mu sync.Mutex

	db        *db.DB
	schedules *store.Schedules
	config    *store.Config
	jobs      *jobs.Scheduler
	engine    *scheduler.Scheduler
	device    jobs.Applier
	ledger    *ledger.Ledger
}

// NewScheduleService creates a ScheduleService.
func NewScheduleService(
	database *db.DB,
	schedules *store.Schedules,
	config *store.Config,
	js *jobs.Scheduler,
	engine *scheduler.Scheduler,
	applier jobs.Applier,
	l *ledger.Ledger,
) *ScheduleService {
	return &ScheduleService{
		db:        database,
		schedules: schedules,
		config:    config,
		jobs:      js,
		engine:    engine,
		device:    applier,
		ledger:    l,
	}
}

// List returns every schedule ordered by time.
func (s *ScheduleService) List(ctx context.Context) ([]schedule.Schedule, error) {
	return s.schedules.List(ctx)
}

// Get returns one schedule or store.ErrNotFound.
func (s *ScheduleService) Get(ctx context.Context, id int64) (*schedule.Schedule, error) {
	return s.schedules.Get(ctx, id)
}

// Create validates and stores a new schedule, then registers its job.
func (s *ScheduleService) Create(ctx context.Context, f schedule.Fields) (*schedule.Schedule, error) {
	if err := schedule.Validate(f.Apply(0)); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.schedules.Insert(ctx, f)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Reconcile(*rec); err != nil {
		return nil, errors.Wrap(err, "schedule stored but job not registered")
	}

	log.Info().Int64("schedule_id", rec.ID).Str("name", rec.Name).Msg("Schedule created")
	return rec, nil
}

// Update replaces a schedule and re-derives its job.
func (s *ScheduleService) Update(ctx context.Context, id int64, f schedule.Fields) (*schedule.Schedule, error) {
	if err := schedule.Validate(f.Apply(id)); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.schedules.Update(ctx, id, f)
	if err != nil {
		return nil, err
	}
	if err := s.jobs.Reconcile(*rec); err != nil {
		return nil, errors.Wrap(err, "schedule stored but job not registered")
	}

	log.Info().Int64("schedule_id", rec.ID).Bool("enabled", rec.Enabled).Msg("Schedule updated")
	return rec, nil
}

// Delete removes a schedule and its job. Deleting an absent id succeeds.
func (s *ScheduleService) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.schedules.Delete(ctx, id); err != nil {
		return err
	}
	s.jobs.Remove(id)

	log.Info().Int64("schedule_id", id).Msg("Schedule deleted")
	return nil
}

// Jobs lists the live jobs.
func (s *ScheduleService) Jobs() []scheduler.JobInfo {
	return s.engine.Jobs()
}

// Config returns all device parameters.
func (s *ScheduleService) Config(ctx context.Context) (map[string]string, error) {
	return s.config.All(ctx)
}

// SaveConfig upserts device parameters in one transaction.
func (s *ScheduleService) SaveConfig(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.config.SetMany(ctx, values); err != nil {
		return err
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	log.Info().Strs("keys", keys).Msg("Config saved")
	return nil
}

// SendCommand applies a command to the configured device immediately.
func (s *ScheduleService) SendCommand(ctx context.Context, cmd device.Command) (device.Result, error) {
	baseURL, ok, err := s.config.Get(ctx, db.DeviceURLKey)
	if err != nil {
		return device.Result{}, err
	}
	if !ok || baseURL == "" {
		return device.Result{}, device.ErrNoDeviceURL
	}

	log.Info().Str("action", string(cmd.Action)).Str("url", baseURL).Msg("Sending manual command")
	res := s.device.Apply(ctx, cmd, baseURL)

	err = s.ledger.Append(ctx, ledger.Entry{
		EventType: ledger.EventDeviceApplied,
		Source:    "manual",
		Payload: map[string]any{
			"url":    baseURL,
			"action": string(cmd.Action),
			"relay":  res.Relay,
			"strip":  res.Strip,
		},
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to record manual command")
	}
	return res, nil
}

// History returns recent ledger entries, optionally for one schedule.
func (s *ScheduleService) History(ctx context.Context, scheduleID int64, limit int) ([]*ledger.Entry, error) {
	if scheduleID != 0 {
		return s.ledger.ForSchedule(ctx, scheduleID, limit)
	}
	return s.ledger.Recent(ctx, limit)
}

// Ready reports whether the database is reachable.
func (s *ScheduleService) Ready(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
