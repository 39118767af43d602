package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/config"
)

// App owns the relayd services and their run context.
type App struct {
	cfg      *config.Config
	services *Services
	ctx      context.Context
	cancel   context.CancelFunc
}

// New opens the database and wires every service. Nothing runs until Start.
func New(cfg *config.Config) (*App, error) {
	services, err := NewServices(cfg)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, services: services}, nil
}

// Services exposes the wired services.
func (a *App) Services() *Services {
	return a.services
}

// Start loads stored schedules into the timer engine, then starts the
// dispatcher and the API server. A fatal API error cancels the run context.
func (a *App) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	fail := func(err error) {
		log.Error().Err(err).Msg("Service failed, stopping relayd")
		a.cancel()
	}

	if err := a.services.Start(a.ctx, fail); err != nil {
		return err
	}

	log.Info().Msg("relayd started")
	return nil
}

// Stop shuts relayd down in order: the dispatcher stops firing, queued
// executions drain within shutdown_timeout, then the database closes.
func (a *App) Stop() error {
	log.Info().Dur("timeout", a.cfg.ShutdownTimeout.Duration()).Msg("Stopping relayd")

	if a.cancel != nil {
		a.cancel()
	}
	if a.services == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout.Duration())
	defer cancel()
	return a.services.Stop(ctx)
}

// Wait blocks until the run context ends.
func (a *App) Wait() {
	if a.ctx != nil {
		<-a.ctx.Done()
	}
}

// SignalContext is cancelled on the first SIGINT or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigs
		log.Warn().Str("signal", sig.String()).Msg("Shutdown requested")
		cancel()
	}()
	return ctx
}
