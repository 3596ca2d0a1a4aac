package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"tranchefi/native/effects"
	"tranchefi/observability/logging"
	telemetry "tranchefi/observability/otel"
	"tranchefi/services/collab"
	"tranchefi/services/ledgerd/config"
	"tranchefi/services/ledgerd/journal"
	"tranchefi/services/ledgerd/ledger"
	"tranchefi/services/ledgerd/middleware"
	"tranchefi/services/ledgerd/server"
	"tranchefi/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config/ledgerd.yaml", "path to ledgerd config (.yaml or .toml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.SetupWithOptions("ledgerd", cfg.Environment, logging.Options{
		Level: logging.ParseLevel(cfg.Log.Level),
		File:  cfg.Log.File,
	})
	logger.Info("configuration loaded", slog.Any("config", cfg.Sanitized()))

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "ledgerd",
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	db, err := storage.Open(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer db.Close()

	store, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	defer store.Close()

	invoker, err := newInvoker(cfg, logger)
	if err != nil {
		log.Fatalf("configure collaborators: %v", err)
	}

	l, err := ledger.New(db, ledger.Options{
		Custody:    cfg.CustodyAddress(),
		Pauses:     cfg.PauseView(),
		Dispatcher: effects.NewDispatcher(invoker, cfg.Collaborators.Timeout, logger),
		Journal:    store,
		Logger:     logger,
	})
	if err != nil {
		log.Fatalf("init ledger: %v", err)
	}

	limit := middleware.RateLimit{
		RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
		Burst:             cfg.RateLimit.Burst,
	}
	srv, err := server.New(server.Config{
		Ledger: l,
		Store:  store,
		Authenticator: middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew,
		}, logger),
		RateLimiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			"fund":   limit,
			"credit": limit,
		}, logger),
		Observability: middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName: "ledgerd",
			LogRequests: true,
		}, logger),
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("init server: %v", err)
	}
	if !cfg.Auth.Enabled {
		logger.Warn("token auth disabled; callers are identified by the " + middleware.HeaderSigner + " header")
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("ledgerd listening",
			slog.String("addr", cfg.ListenAddress),
			slog.String("custody", cfg.CustodyAddress().String()))
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.String("error", err.Error()))
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve http", slog.String("error", err.Error()))
		}
	}
}

// newInvoker returns the collaborator RPC client, or a logging invoker when
// no endpoint is configured.
func newInvoker(cfg config.Config, logger *slog.Logger) (effects.Invoker, error) {
	c := cfg.Collaborators
	if c.Endpoint == "" {
		logger.Warn("no collaborator endpoint configured; effects will only be logged")
		return effects.LogInvoker{Logger: logger}, nil
	}
	logger.Info("collaborator endpoint configured",
		slog.String("endpoint", c.Endpoint),
		logging.MaskField("bearer_token", c.BearerToken))
	return collab.NewClient(collab.Config{
		BaseURL:            c.Endpoint,
		BearerToken:        c.BearerToken,
		SharedSecretHeader: c.SharedSecretHeader,
		SharedSecretValue:  c.SharedSecret,
		TLSClientCAFile:    c.CAFile,
		AllowInsecure:      c.AllowInsecure,
		Timeout:            c.Timeout,
	})
}
