package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "outbox", cfg.Events.Source)
	assert.Equal(t, "mock", cfg.Context.Provider)
	assert.Equal(t, "@every 30s", cfg.Cycle.Spec)
	assert.Equal(t, 30*time.Second, cfg.Cycle.GatherTimeout)
	assert.False(t, cfg.Context.Watchlist.Empty(), "mock provider gets the demo watchlist")
	assert.False(t, cfg.TelegramEnabled())
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://localhost/actions
events:
  source: memory
context:
  provider: vstrader
  base_url: http://quotes.local
  watchlist:
    stocks: [AAPL, MSFT]
cycle:
  spec: "0 */5 * * * *"
  sync_timeout: 2s
  eval_workers: 4
`)
	t.Setenv("SENTINEL_CYCLE_EVAL_WORKERS", "8")
	t.Setenv("SENTINEL_DATABASE_MAX_OPEN_CONNS", "12")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://localhost/actions", cfg.Database.DSN)
	assert.Equal(t, 12, cfg.Database.MaxOpenConns)
	assert.Equal(t, "memory", cfg.Events.Source)
	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Context.Watchlist.Stocks)
	assert.Equal(t, 2*time.Second, cfg.Cycle.SyncTimeout)
	assert.Equal(t, 8, cfg.Cycle.EvalWorkers)
	assert.True(t, cfg.TelegramEnabled())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }},
		{"bad source", func(c *Config) { c.Events.Source = "kafka" }},
		{"bad provider", func(c *Config) { c.Context.Provider = "bloomberg" }},
		{"vstrader without url", func(c *Config) { c.Context.Provider = "vstrader" }},
		{"bad cron", func(c *Config) { c.Cycle.Spec = "sometimes" }},
		{"five field cron", func(c *Config) { c.Cycle.Spec = "*/5 * * * *" }},
		{"half telegram", func(c *Config) { c.Telegram.BotToken = "tok" }},
		{"no workers", func(c *Config) { c.Cycle.EvalWorkers = -1 }},
	}
	require.NoError(t, base().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
