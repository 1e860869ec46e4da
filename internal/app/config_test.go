package app

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/pizzeria/pkg/pizzasdk"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8000", cfg.BaseURL)
	require.Equal(t, DriverSQLite, cfg.StoreDriver)
	require.Equal(t, pizzasdk.DefaultTimeout, cfg.HTTPTimeout)
	require.Equal(t, 10*time.Second, cfg.PollInterval)
	require.Equal(t, 2*time.Second, cfg.PaymentDelay)
	require.True(t, cfg.RateLimit().Enabled())
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	file := filepath.Join(dir, "pizzeria.yaml")
	require.NoError(t, os.WriteFile(file, []byte(
		"base_url: http://from-file\n"+
			"log_level: debug\n"+
			"poll_interval: 30s\n"+
			"store_driver: memory\n",
	), 0o600))

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := LoadConfig(newFlags(t))
		require.NoError(t, err)
		require.Equal(t, "http://from-file", cfg.BaseURL)
		require.Equal(t, "debug", cfg.LogLevel)
		require.Equal(t, 30*time.Second, cfg.PollInterval)
		require.Equal(t, DriverMemory, cfg.StoreDriver)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("PIZZERIA_BASE_URL", "http://from-env")
		t.Setenv("PIZZERIA_POLL_INTERVAL", "5s")
		t.Setenv("PIZZERIA_RATE_LIMIT_REQUESTS", "0")

		cfg, err := LoadConfig(newFlags(t))
		require.NoError(t, err)
		require.Equal(t, "http://from-env", cfg.BaseURL)
		require.Equal(t, 5*time.Second, cfg.PollInterval)
		require.False(t, cfg.RateLimit().Enabled())
	})

	t.Run("flags over env", func(t *testing.T) {
		t.Setenv("PIZZERIA_BASE_URL", "http://from-env")

		cfg, err := LoadConfig(newFlags(t, "--base-url", "http://from-flag", "--poll-interval", "1s"))
		require.NoError(t, err)
		require.Equal(t, "http://from-flag", cfg.BaseURL)
		require.Equal(t, time.Second, cfg.PollInterval)
		require.Equal(t, "debug", cfg.LogLevel, "unset flags do not mask the file")
	})

	t.Run("explicit config file", func(t *testing.T) {
		other := filepath.Join(t.TempDir(), "other.yaml")
		require.NoError(t, os.WriteFile(other, []byte("base_url: http://other\nstore_driver: memory\n"), 0o600))

		cfg, err := LoadConfig(newFlags(t, "--config", other))
		require.NoError(t, err)
		require.Equal(t, "http://other", cfg.BaseURL)

		_, err = LoadConfig(newFlags(t, "--config", filepath.Join(dir, "missing.yaml")))
		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Setenv("PIZZERIA_STORE_DRIVER", "floppy")
	_, err := LoadConfig(nil)
	require.ErrorContains(t, err, "unknown store_driver")

	t.Setenv("PIZZERIA_STORE_DRIVER", "memory")
	t.Setenv("PIZZERIA_HTTP_TIMEOUT", "0s")
	_, err = LoadConfig(nil)
	require.ErrorContains(t, err, "http_timeout")
}

func TestNew_Stores(t *testing.T) {
	ctx := context.Background()
	base := Config{
		BaseURL:     "http://localhost:1",
		HTTPTimeout: time.Second,
		LogOutput:   io.Discard,
	}

	t.Run("memory", func(t *testing.T) {
		cfg := base
		cfg.StoreDriver = DriverMemory

		app, err := New(ctx, cfg)
		require.NoError(t, err)
		require.NotNil(t, app.Gateway)
		require.NoError(t, app.Close())
	})

	t.Run("sqlite persists across runs", func(t *testing.T) {
		cfg := base
		cfg.StoreDriver = DriverSQLite
		cfg.DatabaseFile = filepath.Join(t.TempDir(), "nested", "state.db")
		cfg.MasterKey = "master"

		app, err := New(ctx, cfg)
		require.NoError(t, err)
		want := pizzasdk.Credentials{AccessToken: "a", RefreshToken: "r", Role: pizzasdk.RoleUser}
		require.NoError(t, app.Store.Save(ctx, want))
		require.NoError(t, app.Close())

		app, err = New(ctx, cfg)
		require.NoError(t, err)
		defer app.Close()
		got, err := app.Store.Load(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	})
}
