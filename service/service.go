package service

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-testkit/metrics"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"

	MetricsHost = "0.0.0.0"
	MetricsPort = "7300"
)

// Config contains service configuration. Empty hosts and ports use the defaults.
type Config struct {
	Log            log.Logger
	HealthzEnabled bool
	HealthzHost    string
	HealthzPort    string
	MetricsEnabled bool
	MetricsHost    string
	MetricsPort    string
	// Status backs the /status endpoint of the healthz server.
	Status StatusFunc
}

type Service struct {
	config  Config
	log     log.Logger
	Healthz *HealthzServer
	Metrics *MetricsServer
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.HealthzHost == "" {
		cfg.HealthzHost = HealthzHost
	}
	if cfg.HealthzPort == "" {
		cfg.HealthzPort = HealthzPort
	}
	if cfg.MetricsHost == "" {
		cfg.MetricsHost = MetricsHost
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = MetricsPort
	}
	lgr := cfg.Log.New("component", "service")
	return &Service{
		config:  cfg,
		log:     lgr,
		Healthz: NewHealthzServer(lgr, cfg.Status),
		Metrics: &MetricsServer{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	if s.config.HealthzEnabled {
		addr := net.JoinHostPort(s.config.HealthzHost, s.config.HealthzPort)
		s.log.Info("starting healthz server", "addr", addr)
		go func() {
			if err := s.Healthz.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting healthz server", "err", err)
				metrics.RecordErrorDetails("error starting healthz server", err)
			}
		}()
	}

	if s.config.MetricsEnabled {
		addr := net.JoinHostPort(s.config.MetricsHost, s.config.MetricsPort)
		s.log.Info("starting metrics server", "addr", addr)
		go func() {
			if err := s.Metrics.Start(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("error starting metrics server", "err", err)
				metrics.RecordErrorDetails("error starting metrics server", err)
			}
		}()
	}

	s.log.Info("service started")
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	if s.config.HealthzEnabled {
		_ = s.Healthz.Shutdown()
		s.log.Info("healthz stopped")
	}
	if s.config.MetricsEnabled {
		_ = s.Metrics.Shutdown()
		s.log.Info("metrics stopped")
	}

	s.log.Info("service stopped")
}
