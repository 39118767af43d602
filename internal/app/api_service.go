package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayd/internal/api"
	"github.com/dokzlo13/relayd/internal/config"
	"github.com/dokzlo13/relayd/internal/metrics"
)

// APIService wraps the HTTP API server.
type APIService struct {
	cfg    *config.Config
	server *api.Server
}

// NewAPIService creates a new APIService.
func NewAPIService(cfg *config.Config, backend api.Backend, rec *metrics.Recorder) *APIService {
	router := api.NewRouter(backend, rec.Handler(), cfg.API.CORSOrigins)
	return &APIService{
		cfg:    cfg,
		server: api.NewServer(cfg.API.Host, cfg.API.Port, router),
	}
}

// Start begins the API server if enabled. A listen failure is fatal.
func (s *APIService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.API.IsEnabled() {
		log.Info().Msg("API server disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("API server error")
			onFatalError(err)
		}
	}()
}
