// Package runtime assembles the service: telemetry, request history, the
// generator cascade, the HTTP API, and the optional bus worker. Start blocks
// until the context is cancelled, then winds everything down in order.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sonalabs/sona-tts/internal/bus"
	"github.com/sonalabs/sona-tts/internal/config"
	"github.com/sonalabs/sona-tts/internal/engine"
	"github.com/sonalabs/sona-tts/internal/history"
	"github.com/sonalabs/sona-tts/internal/natsserver"
	"github.com/sonalabs/sona-tts/internal/server"
	"github.com/sonalabs/sona-tts/internal/synth"
	"github.com/sonalabs/sona-tts/internal/worker"
)

type Runtime struct {
	cfg         config.Config
	version     string
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	bus         *bus.Client
	worker      *worker.Service
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, version string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		version: version,
		logger:  logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	resolver := synth.NewResolver(r.cfg.Synth, r.logger)
	generator := synth.NewGenerator(resolver, r.logger)
	eng := engine.New(generator, store, r.cfg.Synth.DefaultMaxAudioMS, r.logger)

	if r.cfg.Synth.ResolveOnStart {
		if _, err := resolver.Resolve(ctx); err != nil {
			// Keep serving: requests retry the cascade while no handle exists.
			r.logger.Warn("generator resolution failed at startup", slog.String("error", err.Error()))
		}
	}

	if r.cfg.Worker.Enabled {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("start embedded nats: %w", err)
		}
		defer embedded.Shutdown()

		busCfg := r.cfg.Bus
		if embedded != nil {
			busCfg.Servers = []string{embedded.ClientURL()}
		}
		r.bus, err = bus.Connect(ctx, busCfg, r.logger)
		if err != nil {
			return fmt.Errorf("connect to bus: %w", err)
		}
		defer r.bus.Close()

		r.worker = worker.NewService(ctx, r.cfg.Worker, r.bus, eng, r.logger)
		if err := r.worker.Start(); err != nil {
			return fmt.Errorf("start worker: %w", err)
		}
		defer r.worker.Close()
	}

	mux := http.NewServeMux()
	server.New(eng, r.version, r.logger).Register(mux)
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("device", resolver.Device()),
		slog.Bool("worker", r.cfg.Worker.Enabled))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		time.Duration(r.cfg.HTTP.ShutdownGraceMS)*time.Millisecond)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	ready := r.ready.Load()
	if ready && r.worker != nil {
		ready = r.worker.Healthy() && r.bus.Healthy()
	}
	if ready {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
