// Package sensormux exposes the multiplexing service for embedding: a
// Runtime wires the hardware adapter, metering journal, observability stack,
// and metrics endpoint together from a Config, with functional options to
// substitute any dependency.
package sensormux

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"sensormux/internal/adapters/channel"
	"sensormux/internal/adapters/hal"
	"sensormux/internal/adapters/metering"
	"sensormux/internal/adapters/observability"
	"sensormux/internal/app/config"
	"sensormux/internal/ports"
	"sensormux/internal/service"
)

// Config is the runtime configuration, normally loaded from YAML.
type Config = config.Config

// LoadConfig reads, defaults, and validates a YAML config file.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// Option overrides one of the Runtime's default dependencies.
type Option func(*overrides)

type overrides struct {
	hardware ports.HardwareAdapter
	metering ports.Metering
	obs      ports.Observability
	channels func() (ports.EventChannel, error)
	logger   *zap.Logger
}

// WithHardware injects a real device adapter in place of the simulator.
func WithHardware(hw ports.HardwareAdapter) Option {
	return func(o *overrides) { o.hardware = hw }
}

// WithMetering injects a custom accounting collaborator.
func WithMetering(m ports.Metering) Option {
	return func(o *overrides) { o.metering = m }
}

// WithObservability replaces the default Prometheus/zap stack.
func WithObservability(obs ports.Observability) Option {
	return func(o *overrides) { o.obs = obs }
}

// WithChannelFactory overrides how per-connection event channels are built.
func WithChannelFactory(f func() (ports.EventChannel, error)) Option {
	return func(o *overrides) { o.channels = f }
}

// WithLogger sets the zap logger used by the default observability stack.
func WithLogger(log *zap.Logger) Option {
	return func(o *overrides) { o.logger = log }
}

// Runtime owns the service core plus its operational surface: the metrics
// HTTP server with the token-gated diagnostic dump, and the optional
// Postgres activity journal.
type Runtime struct {
	cfg *config.Config
	svc *service.Service

	db         *sql.DB
	metricsSrv *http.Server
}

// NewRuntime builds the default adapters (simulated hardware, Postgres or
// no-op metering, Prometheus observability, channel transport per config)
// and starts the service core, including its dispatch loop.
func NewRuntime(cfg *Config, opts ...Option) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	var o overrides
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	obs := o.obs
	if obs == nil {
		log := o.logger
		if log == nil {
			var err error
			log, err = zap.NewProduction()
			if err != nil {
				return nil, err
			}
		}
		obs = observability.NewPromObs(log)
	}

	hw := o.hardware
	if hw == nil {
		var err error
		hw, err = hal.NewSimulator(cfg.Hardware)
		if err != nil {
			return nil, err
		}
	}

	var db *sql.DB
	meter := o.metering
	if meter == nil {
		if cfg.ActivityLog.ConnString != "" {
			var err error
			db, err = sql.Open("postgres", cfg.ActivityLog.ConnString)
			if err != nil {
				return nil, err
			}
			meter = metering.NewPostgresLog(db, cfg.ActivityLog.Table)
		} else {
			meter = metering.Nop{}
		}
	}

	channels := o.channels
	if channels == nil {
		channels = channelFactory(cfg)
	}

	svc := service.New(hw, meter, obs, service.Config{
		MinPeriod:      cfg.Service.MinPeriod,
		FallbackPeriod: cfg.Service.FallbackPeriod,
		PollBatch:      cfg.Service.PollBatch,
		NewChannel:     channels,
	})

	return &Runtime{cfg: cfg, svc: svc, db: db}, nil
}

func channelFactory(cfg *Config) func() (ports.EventChannel, error) {
	if cfg.Service.Transport == config.TransportSocketPair {
		return func() (ports.EventChannel, error) {
			return channel.NewSocketPair(cfg.Service.ChannelBufBytes)
		}
	}
	return func() (ports.EventChannel, error) {
		return channel.NewRing(cfg.Service.ChannelBufBytes), nil
	}
}

// Service exposes the core facade: sensor list, connections, dump.
func (r *Runtime) Service() *service.Service { return r.svc }

// Start launches the metrics endpoint. The dispatch loop is already running;
// call Run to block on a context instead.
func (r *Runtime) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/debug/sensors", r.handleDump)

	r.metricsSrv = &http.Server{
		Addr:    r.cfg.Metrics.Addr,
		Handler: mux,
	}

	go func() {
		if err := r.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server exited: %v", err)
		}
	}()
	return nil
}

// handleDump serves the diagnostic report. Access requires the configured
// dump token; an unset token denies everyone.
func (r *Runtime) handleDump(w http.ResponseWriter, req *http.Request) {
	token := r.cfg.Dump.Token
	if token == "" || req.Header.Get("X-Dump-Token") != token {
		http.Error(w, "Permission Denial: can't dump SensorService", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_ = r.svc.Dump(w)
}

// Run starts the runtime and blocks until the context is cancelled, then
// attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops the metrics server, closes the hardware device (which
// terminates the dispatch loop), and releases the activity journal.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs error

	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = multierr.Append(errs, err)
		}
	}

	errs = multierr.Append(errs, r.svc.Close())

	if r.db != nil {
		errs = multierr.Append(errs, r.db.Close())
	}

	return errs
}
