// Package jobs keeps the timer engine's job table in step with stored schedules
// and executes fired jobs against the device.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/db"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/eventbus"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/metrics"
	"github.com/dokzlo13/relayd/internal/schedule"
	"github.com/dokzlo13/relayd/internal/scheduler"
	"github.com/dokzlo13/relayd/internal/store"
)

// ScheduleReader reads schedule records.
type ScheduleReader interface {
	Get(ctx context.Context, id int64) (*schedule.Schedule, error)
	List(ctx context.Context) ([]schedule.Schedule, error)
}

// ConfigReader reads device parameters.
type ConfigReader interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// Applier sends a command to the device.
type Applier interface {
	Apply(ctx context.Context, cmd device.Command, baseURL string) device.Result
}

// Engine is the timer engine the job table lives in.
type Engine interface {
	Add(job scheduler.Job) error
	Remove(id string) scheduler.RemoveResult
}

// Scheduler mirrors stored schedules as engine jobs, one per enabled schedule.
type Scheduler struct {
	engine    Engine
	schedules ScheduleReader
	config    ConfigReader
	device    Applier
	ledger    *ledger.Ledger
	metrics   *metrics.Recorder
	loc       *time.Location

	locksMu sync.Mutex
	locks   map[int64]*idLock
}

// idLock is a per-schedule mutex that lives while anyone holds or waits on it.
type idLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a job scheduler. Triggers are evaluated in loc.
func New(
	engine Engine,
	schedules ScheduleReader,
	config ConfigReader,
	applier Applier,
	l *ledger.Ledger,
	rec *metrics.Recorder,
	loc *time.Location,
) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		engine:    engine,
		schedules: schedules,
		config:    config,
		device:    applier,
		ledger:    l,
		metrics:   rec,
		loc:       loc,
		locks:     make(map[int64]*idLock),
	}
}

// lock serializes job changes for one schedule id and returns the unlock func.
// The entry is dropped once its last holder unlocks.
func (s *Scheduler) lock(id int64) func() {
	s.locksMu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &idLock{}
		s.locks[id] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, id)
		}
		s.locksMu.Unlock()
	}
}

// TriggerFor derives the weekly trigger of a schedule.
func TriggerFor(sc schedule.Schedule, loc *time.Location) (*scheduler.WeeklyTrigger, error) {
	hour, minute, err := schedule.ParseClock(sc.Time)
	if err != nil {
		return nil, err
	}
	days, err := schedule.ParseDays(sc.Days)
	if err != nil {
		return nil, err
	}

	weekdays := make([]time.Weekday, 0, len(days))
	for _, d := range days {
		weekdays = append(weekdays, schedule.Weekday(d))
	}
	return scheduler.NewWeeklyTrigger(weekdays, hour, minute, loc)
}

// Reconcile makes the job table match the schedule: any existing job for its id
// is removed, and a fresh one is registered when the schedule is enabled.
// A malformed schedule ends up with no job and the error is returned.
func (s *Scheduler) Reconcile(sc schedule.Schedule) error {
	defer s.lock(sc.ID)()

	jobID := sc.JobID()
	s.engine.Remove(jobID)

	if !sc.Enabled {
		log.Info().Int64("schedule_id", sc.ID).Str("job_id", jobID).Msg("Schedule disabled, no job")
		return nil
	}

	if err := schedule.Validate(sc); err != nil {
		return errors.Wrapf(err, "schedule %d", sc.ID)
	}

	trigger, err := TriggerFor(sc, s.loc)
	if err != nil {
		return errors.Wrapf(err, "schedule %d", sc.ID)
	}

	job := scheduler.Job{
		ID:      jobID,
		Trigger: trigger,
		Args:    map[string]any{"schedule_id": sc.ID},
	}
	if err := s.engine.Add(job); err != nil {
		return errors.Wrapf(err, "schedule %d", sc.ID)
	}

	log.Info().
		Int64("schedule_id", sc.ID).
		Str("job_id", jobID).
		Str("name", sc.Name).
		Str("trigger", trigger.String()).
		Msg("Schedule reconciled")
	return nil
}

// Remove drops the job of a schedule id. Removing an absent job is not an error.
func (s *Scheduler) Remove(id int64) scheduler.RemoveResult {
	defer s.lock(id)()

	res := s.engine.Remove(schedule.JobID(id))
	log.Info().Int64("schedule_id", id).Str("result", res.String()).Msg("Schedule job removed")
	return res
}

// LoadAll reconciles every stored schedule. Malformed rows are logged and skipped.
func (s *Scheduler) LoadAll(ctx context.Context) error {
	all, err := s.schedules.List(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to load schedules")
	}

	loaded := 0
	for _, sc := range all {
		if err := s.Reconcile(sc); err != nil {
			log.Error().Err(err).Int64("schedule_id", sc.ID).Msg("Skipping malformed schedule")
			continue
		}
		if sc.Enabled {
			loaded++
		}
	}

	log.Info().Int("schedules", len(all)).Int("jobs", loaded).Msg("Schedules loaded")
	return nil
}

// Execute runs one fire of a schedule. The record is re-read so the fire uses
// current parameters; a deleted schedule or a missing device URL ends the run.
func (s *Scheduler) Execute(ctx context.Context, id int64) {
	runID := uuid.NewString()
	logger := log.With().Int64("schedule_id", id).Str("run_id", runID).Logger()

	sc, err := s.schedules.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		logger.Warn().Msg("Schedule not found, skipping")
		s.metrics.IncExecuteSkipped("schedule_missing")
		s.record(ctx, ledger.EventScheduleMissing, id, runID, nil)
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read schedule")
		s.metrics.IncExecuteSkipped("store_error")
		return
	}

	logger.Info().Str("name", sc.Name).Str("action", string(sc.Action)).Msg("Executing schedule")
	s.record(ctx, ledger.EventScheduleFired, id, runID, map[string]any{
		"name":   sc.Name,
		"action": string(sc.Action),
	})

	baseURL, ok, err := s.config.Get(ctx, db.DeviceURLKey)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read device URL")
		s.metrics.IncExecuteSkipped("store_error")
		return
	}
	if !ok || baseURL == "" {
		logger.Error().Str("key", db.DeviceURLKey).Msg("Device URL not configured")
		s.metrics.IncExecuteSkipped("config_missing")
		s.record(ctx, ledger.EventConfigMissing, id, runID, nil)
		return
	}

	res := s.device.Apply(ctx, device.CommandFor(*sc), baseURL)

	ev := logger.Info()
	if !res.OK() {
		ev = logger.Warn()
	}
	ev.Str("url", baseURL).
		Str("relay", string(res.Relay.Outcome)).
		Str("strip", string(res.Strip.Outcome)).
		Msg("Schedule executed")

	s.record(ctx, ledger.EventDeviceApplied, id, runID, map[string]any{
		"url":    baseURL,
		"relay":  res.Relay,
		"strip":  res.Strip,
		"action": string(sc.Action),
	})
}

// HandleEvent executes the schedule carried by a job fired event.
func (s *Scheduler) HandleEvent(ctx context.Context, e eventbus.Event) {
	id, ok := e.Data["schedule_id"].(int64)
	if !ok {
		log.Warn().Interface("job_id", e.Data["job_id"]).Msg("Fired job carries no schedule id")
		return
	}
	s.Execute(ctx, id)
}

// Subscribe routes job fired events from bus to Execute. Executions ignore
// cancellation of ctx; queued fires drain while the bus closes.
func (s *Scheduler) Subscribe(ctx context.Context, bus *eventbus.Bus) {
	execCtx := context.WithoutCancel(ctx)
	bus.Subscribe(eventbus.EventTypeJobFired, func(e eventbus.Event) {
		s.HandleEvent(execCtx, e)
	})
}

func (s *Scheduler) record(ctx context.Context, typ ledger.EventType, id int64, runID string, payload map[string]any) {
	err := s.ledger.Append(ctx, ledger.Entry{
		EventType:  typ,
		ScheduleID: id,
		RunID:      runID,
		Source:     "scheduler",
		Payload:    payload,
	})
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("Failed to record ledger entry")
	}
}
