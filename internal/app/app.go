// Package app wires configuration, storage, the backend client and the
// controllers into one container.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/soheil-star01/anjoman/internal/api/anjoman"
	"github.com/soheil-star01/anjoman/internal/core/domain"
	"github.com/soheil-star01/anjoman/internal/core/ports"
	"github.com/soheil-star01/anjoman/internal/pkg/config"
	"github.com/soheil-star01/anjoman/internal/registry"
	"github.com/soheil-star01/anjoman/internal/segment"
	"github.com/soheil-star01/anjoman/internal/session"
	"github.com/soheil-star01/anjoman/internal/storage/memory"
	"github.com/soheil-star01/anjoman/internal/storage/sqlite"
	"github.com/soheil-star01/anjoman/internal/telemetry"
	"github.com/soheil-star01/anjoman/internal/tokens"
)

// App holds the long-lived dependencies of one CLI invocation.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     ports.CredentialStore
	API       ports.SessionAPI
	Pricing   ports.PricingAPI
	Segmenter *segment.Segmenter
	Tokens    *tokens.Registry

	shutdown telemetry.ShutdownFunc
}

// NewLogger builds the slog logger described by cfg.
func NewLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// New builds the container. The caller must Close it.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	shutdown, err := telemetry.InitTracer(telemetry.Options{
		Enabled: cfg.Telemetry.Enabled,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		_ = shutdown(context.Background())
		return nil, err
	}

	timeout, err := cfg.Backend.TimeoutDuration()
	if err != nil {
		_ = store.Close()
		_ = shutdown(context.Background())
		return nil, err
	}
	clientOpts := []anjoman.ClientOption{
		anjoman.WithBaseURL(cfg.Backend.BaseURL),
		anjoman.WithLogger(logger),
	}
	if timeout > 0 {
		clientOpts = append(clientOpts, anjoman.WithTimeout(timeout))
	}

	logger.Debug("app initialized",
		slog.String("backend", cfg.Backend.BaseURL),
		slog.String("storage", cfg.Storage.Type))

	client := anjoman.NewClient(clientOpts...)
	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   store,
		API:     client,
		Pricing: client,
		Segmenter: segment.New(segment.Options{
			MinFragmentLength: cfg.Segmenter.MinFragmentLength,
			MinPreambleLength: cfg.Segmenter.MinPreambleLength,
		}),
		Tokens:   tokens.NewRegistry(),
		shutdown: shutdown,
	}, nil
}

func openStore(cfg config.StorageConfig) (ports.CredentialStore, error) {
	switch cfg.Type {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create settings directory: %w", err)
			}
		}
		store, err := sqlite.New(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NewSession returns a fresh session controller.
func (a *App) NewSession() *session.Controller {
	return session.New(a.API,
		session.WithLogger(a.Logger),
		session.WithWarningThreshold(a.Config.Session.WarningThreshold))
}

// NewRegistry returns a session registry.
func (a *App) NewRegistry() *registry.Registry {
	return registry.New(a.API, registry.WithLogger(a.Logger))
}

// Credentials returns the configured keys overridden by the stored ones.
func (a *App) Credentials(ctx context.Context) (domain.Credentials, error) {
	seed, err := a.Config.ProviderCredentials()
	if err != nil {
		return nil, err
	}
	stored, err := a.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return seed.Merge(stored).Filtered(), nil
}

// Close releases the store and flushes traces.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.shutdown != nil {
		errs = append(errs, a.shutdown(ctx))
	}
	return errors.Join(errs...)
}
