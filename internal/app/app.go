// Package app wires configuration, logging, credential storage and the
// storefront SDK into one Application for the command-line client.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	redisstore "github.com/aussiebroadwan/pizzeria/internal/credstore/drivers/redis"
	"github.com/aussiebroadwan/pizzeria/internal/credstore/drivers/sqlite"
	"github.com/aussiebroadwan/pizzeria/internal/payment"
	"github.com/aussiebroadwan/pizzeria/internal/tracker"
	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/aussiebroadwan/pizzeria/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// ErrSessionExpired is reported by commands after a failed renewal has
// cleared the stored credentials.
var ErrSessionExpired = errors.New("session expired, please log in")

// Application holds the client-side dependencies shared by every command.
type Application struct {
	Config Config
	Logger *slog.Logger

	Store    pizzasdk.CredentialStore
	Client   *pizzasdk.Client
	Gateway  *pizzasdk.Gateway
	Tracker  *tracker.Tracker
	Payments *payment.Processor

	closers []func() error
}

// New builds an Application from cfg.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		Config: cfg,
		Logger: slogx.New(slogx.Config{
			Service: "pizzeria",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  cfg.LogOutput,
		}),
	}

	if err := app.initStore(ctx); err != nil {
		return nil, err
	}

	app.Client = pizzasdk.NewClient(cfg.BaseURL,
		pizzasdk.WithLogger(app.Logger),
		pizzasdk.WithTimeout(cfg.HTTPTimeout),
		pizzasdk.WithRateLimit(cfg.RateLimit()),
	)
	app.Gateway = app.Client.NewGateway(app.Store, app.GatewayOptions()...)
	app.Tracker = tracker.New(app.Gateway, cfg.PollInterval, app.Logger)
	app.Payments = payment.NewProcessor(cfg.PaymentDelay, app.Logger)

	return app, nil
}

// GatewayOptions are applied to every Gateway the application creates,
// including the one returned by a fresh login.
func (app *Application) GatewayOptions() []pizzasdk.GatewayOption {
	return []pizzasdk.GatewayOption{
		pizzasdk.WithSessionExpiredHook(func(ctx context.Context, err error) {
			app.Logger.WarnContext(ctx, "session expired; stored credentials cleared", "error", err)
		}),
	}
}

// Close releases the credential store.
func (app *Application) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		errs = append(errs, app.closers[i]())
	}
	return errors.Join(errs...)
}

// initStore opens the configured credential store.
func (app *Application) initStore(ctx context.Context) error {
	cfg := app.Config

	switch cfg.StoreDriver {
	case DriverMemory:
		app.Store = pizzasdk.NewMemoryStore(pizzasdk.Credentials{})

	case DriverSQLite:
		if dir := filepath.Dir(cfg.DatabaseFile); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return fmt.Errorf("failed to create state directory: %w", err)
			}
		}
		dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.DatabaseFile)
		store, err := sqlite.NewStore(ctx, dsn, cfg.MasterKey)
		if err != nil {
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		app.Store = store
		app.closers = append(app.closers, store.Close)

	case DriverRedis:
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		store, err := redisstore.NewStore(ctx, rdb, cfg.RedisPrefix, cfg.MasterKey)
		if err != nil {
			_ = rdb.Close()
			return fmt.Errorf("failed to open credential store: %w", err)
		}
		app.Store = store
		app.closers = append(app.closers, store.Close)

	default:
		return fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}

	app.Logger.DebugContext(ctx, "credential store ready", "driver", cfg.StoreDriver)
	return nil
}
