package app

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/config"
	"github.com/dokzlo13/relayd/internal/db"
	"github.com/dokzlo13/relayd/internal/device"
	"github.com/dokzlo13/relayd/internal/eventbus"
	"github.com/dokzlo13/relayd/internal/jobs"
	"github.com/dokzlo13/relayd/internal/ledger"
	"github.com/dokzlo13/relayd/internal/metrics"
	"github.com/dokzlo13/relayd/internal/scheduler"
	"github.com/dokzlo13/relayd/internal/store"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB      *db.DB
	Ledger  *ledger.Ledger
	Metrics *metrics.Recorder
	Bus     *eventbus.Bus

	// Persistence
	Schedules *store.Schedules
	Config    *store.Config

	// Device access
	DeviceClient *device.Client
	Device       *device.Controller

	// Job engine
	Engine *scheduler.Scheduler
	Jobs   *jobs.Scheduler

	// High-level services
	Schedule  *ScheduleService
	Scheduler *SchedulerService
	API       *APIService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}

	// Initialize database
	database, err := db.Open(cfg.Database.Path, cfg.Device.DefaultURL)
	if err != nil {
		return nil, err
	}
	s.DB = database

	// Initialize ledger (nil records nothing)
	if cfg.Ledger.IsEnabled() {
		s.Ledger = ledger.New(database.DB)
	} else {
		log.Info().Msg("Event ledger is disabled")
	}

	s.Metrics = metrics.New(prometheus.NewRegistry())

	s.Schedules = store.NewSchedules(database.DB)
	s.Config = store.NewConfig(database.DB)

	s.DeviceClient = device.NewClient(cfg.Device.Timeout.Duration(), cfg.Device.RateLimitRPS, s.Metrics)
	s.Device = device.NewController(s.DeviceClient, s.Metrics)

	// Fired jobs run on the bus worker pool, off the dispatcher goroutine
	s.Bus = eventbus.NewWithConfig(cfg.Scheduler.Workers, cfg.Scheduler.QueueSize)
	s.Engine = scheduler.New(s.Bus, s.Metrics)
	s.Jobs = jobs.New(s.Engine, s.Schedules, s.Config, s.Device, s.Ledger, s.Metrics, loc)

	s.Schedule = NewScheduleService(database, s.Schedules, s.Config, s.Jobs, s.Engine, s.Device, s.Ledger)
	s.Scheduler = NewSchedulerService(cfg, s.Engine, s.Jobs, s.Ledger, loc)
	s.API = NewAPIService(cfg, s.Schedule, s.Metrics)

	return s, nil
}

// Start starts all services in the correct order.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Jobs.Subscribe(ctx, s.Bus)

	if err := s.Scheduler.Start(ctx); err != nil {
		return err
	}
	s.API.Start(ctx, onFatalError)

	return nil
}

// Stop gracefully stops all services. The context bounds the wait for
// in-flight executions.
func (s *Services) Stop(ctx context.Context) error {
	if s.Bus != nil {
		s.Bus.Close(ctx)
	}
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.DeviceClient != nil {
		s.DeviceClient.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
