package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/c360studio/feddy/api"
	"github.com/c360studio/feddy/config"
	"github.com/c360studio/feddy/identity"
	"github.com/c360studio/feddy/sdk"
	"github.com/c360studio/feddy/storage"
)

// App wires configuration, identity storage and the SDK for one command run.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	backend  storage.Backend
	sdk      *sdk.SDK
	registry *prometheus.Registry
}

// loadConfig reads the explicit file when given, else the layered config.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	loader := config.NewLoader(newLogger(flags.logLevel, false))
	if flags.configPath != "" {
		return loader.LoadFile(flags.configPath)
	}
	return loader.Load()
}

// NewApp opens the identity backend and configures the SDK.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	backend, err := storage.Open(ctx, cfg.Identity)
	if err != nil {
		return nil, fmt.Errorf("open identity store: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics, err := api.NewMetrics(registry)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	store := identity.NewStore(backend,
		identity.WithBaseURL(cfg.BaseURL),
		identity.WithLogger(logger))

	s := sdk.New(store,
		sdk.WithLogger(logger),
		sdk.WithMetrics(metrics))

	if _, err := s.Configure(ctx, *cfg); err != nil {
		backend.Close()
		return nil, fmt.Errorf("configure SDK: %w", err)
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		backend:  backend,
		sdk:      s,
		registry: registry,
	}, nil
}

// Close releases the identity backend.
func (a *App) Close() error {
	return a.backend.Close()
}

// withApp loads config, builds an App, runs fn and closes the App.
func withApp(ctx context.Context, flags *globalFlags, fn func(*App) error) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(flags.logLevel, cfg.Debug)
	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	return fn(app)
}
