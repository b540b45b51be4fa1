package config

import (
	"fmt"
	"os"
	"time"

	"ActionSentinel/internal/collector"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SENTINEL_DATABASE_DSN.
const EnvPrefix = "SENTINEL"

// Config holds all application configuration.
type Config struct {
	Log struct {
		Level   string `yaml:"level" envconfig:"LEVEL"`
		Pretty  bool   `yaml:"pretty" envconfig:"PRETTY"`
		NoColor bool   `yaml:"no_color" envconfig:"NO_COLOR"`
	} `yaml:"log" envconfig:"LOG"`
	HTTP struct {
		Disabled     bool          `yaml:"disabled" envconfig:"DISABLED"`
		Addr         string        `yaml:"addr" envconfig:"ADDR"`
		ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
		WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	} `yaml:"http" envconfig:"HTTP"`
	Database struct {
		Driver          string        `yaml:"driver" envconfig:"DRIVER"`
		DSN             string        `yaml:"dsn" envconfig:"DSN"`
		MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"MAX_OPEN_CONNS"`
		MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"MAX_IDLE_CONNS"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"CONN_MAX_LIFETIME"`
	} `yaml:"database" envconfig:"DATABASE"`
	Events struct {
		Source    string `yaml:"source" envconfig:"SOURCE"`
		BatchSize int    `yaml:"batch_size" envconfig:"BATCH_SIZE"`
	} `yaml:"events" envconfig:"EVENTS"`
	Context struct {
		Provider  string              `yaml:"provider" envconfig:"PROVIDER"`
		BaseURL   string              `yaml:"base_url" envconfig:"BASE_URL"`
		APIKey    string              `yaml:"api_key" envconfig:"API_KEY"`
		Timeout   time.Duration       `yaml:"timeout" envconfig:"TIMEOUT"`
		MockSeed  int64               `yaml:"mock_seed" envconfig:"MOCK_SEED"`
		Watchlist collector.Watchlist `yaml:"watchlist" envconfig:"WATCHLIST"`
	} `yaml:"context" envconfig:"CONTEXT"`
	Cycle struct {
		Spec           string        `yaml:"spec" envconfig:"SPEC"`
		GatherTimeout  time.Duration `yaml:"gather_timeout" envconfig:"GATHER_TIMEOUT"`
		SyncTimeout    time.Duration `yaml:"sync_timeout" envconfig:"SYNC_TIMEOUT"`
		ContextTimeout time.Duration `yaml:"context_timeout" envconfig:"CONTEXT_TIMEOUT"`
		EvalWorkers    int           `yaml:"eval_workers" envconfig:"EVAL_WORKERS"`
		RunOnStart     bool          `yaml:"run_on_start" envconfig:"RUN_ON_START"`
	} `yaml:"cycle" envconfig:"CYCLE"`
	Telegram struct {
		BotToken string `yaml:"bot_token" envconfig:"BOT_TOKEN"`
		ChatID   string `yaml:"chat_id" envconfig:"CHAT_ID"`
	} `yaml:"telegram" envconfig:"TELEGRAM"`
	Recorder struct {
		SQLitePath string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	} `yaml:"recorder" envconfig:"RECORDER"`
	Proxy string `yaml:"proxy" envconfig:"PROXY"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	// Unprefixed names kept from earlier deployments.
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("VSTRADER_BASE_URL"); v != "" {
		cfg.Context.BaseURL = v
	}
	if v := os.Getenv("VSTRADER_API_KEY"); v != "" {
		cfg.Context.APIKey = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" && cfg.Proxy == "" {
		cfg.Proxy = v
	}
	if os.Getenv("RUN_ON_START") == "true" {
		cfg.Cycle.RunOnStart = true
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.ReadTimeout == 0 {
		c.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.HTTP.WriteTimeout == 0 {
		c.HTTP.WriteTimeout = 60 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "data/actions.db"
	}
	if c.Events.Source == "" {
		c.Events.Source = "outbox"
	}
	if c.Events.BatchSize == 0 {
		c.Events.BatchSize = 500
	}
	if c.Context.Provider == "" {
		c.Context.Provider = "mock"
	}
	if c.Context.Timeout == 0 {
		c.Context.Timeout = 10 * time.Second
	}
	if c.Context.MockSeed == 0 {
		c.Context.MockSeed = time.Now().UnixNano()
	}
	if c.Context.Provider == "mock" && c.Context.Watchlist.Empty() {
		c.Context.Watchlist = collector.DemoWatchlist()
	}
	if c.Cycle.Spec == "" {
		c.Cycle.Spec = "@every 30s"
	}
	if c.Cycle.GatherTimeout == 0 {
		c.Cycle.GatherTimeout = 30 * time.Second
	}
	if c.Cycle.SyncTimeout == 0 {
		c.Cycle.SyncTimeout = 5 * time.Second
	}
	if c.Cycle.ContextTimeout == 0 {
		c.Cycle.ContextTimeout = c.Context.Timeout
	}
	if c.Cycle.EvalWorkers == 0 {
		c.Cycle.EvalWorkers = 1
	}
	if c.Recorder.SQLitePath == "" {
		c.Recorder.SQLitePath = "data/cycle_history.db"
	}
}

// TelegramEnabled reports whether both bot token and chat id are set.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	switch c.Events.Source {
	case "outbox", "memory":
	default:
		return fmt.Errorf("events.source must be outbox or memory, got %q", c.Events.Source)
	}
	switch c.Context.Provider {
	case "mock", "yahoo":
	case "vstrader":
		if c.Context.BaseURL == "" {
			return fmt.Errorf("context.base_url is required for the vstrader provider")
		}
	default:
		return fmt.Errorf("context.provider must be mock, yahoo or vstrader, got %q", c.Context.Provider)
	}
	if c.Cycle.EvalWorkers < 1 {
		return fmt.Errorf("cycle.eval_workers must be at least 1")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Cycle.Spec); err != nil {
		return fmt.Errorf("cycle.spec %q: %w", c.Cycle.Spec, err)
	}
	return nil
}
