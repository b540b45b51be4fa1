package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ActionSentinel/internal/cache"
	"ActionSentinel/internal/collector"
	"ActionSentinel/internal/config"
	"ActionSentinel/internal/cycle"
	"ActionSentinel/internal/events"
	"ActionSentinel/internal/logger"
	"ActionSentinel/internal/model"
	"ActionSentinel/internal/notifier"
	"ActionSentinel/internal/recorder"
	"ActionSentinel/internal/scheduler"
	"ActionSentinel/internal/server"
	"ActionSentinel/internal/store"

	"github.com/rs/zerolog"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLog := logger.New(logger.Config{})
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty, NoColor: cfg.Log.NoColor})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}
	log.Info().Str("config", cfgPath).Msg("ActionSentinel starting")

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Action store
	st, err := store.Open(ctx, store.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open action store")
	}
	defer st.Close()

	// Event source
	var src events.Source
	switch cfg.Events.Source {
	case "memory":
		q := events.NewQueue(log)
		defer q.Close()
		src = q
	default:
		ob := events.NewOutbox(st, cfg.Events.BatchSize, log)
		// The initial state load covers everything already in the outbox.
		if err := ob.SeekLatest(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to position event outbox")
		}
		src = ob
	}
	log.Info().Str("source", cfg.Events.Source).Msg("Event source ready")

	// Market context
	col := collector.NewCollector(newFetcher(cfg, log), cfg.Context.Watchlist, cfg.Context.Timeout, log)

	// Cycle
	actions := cache.New(st, log)
	orch := cycle.New(src, actions, col, log,
		cycle.WithGatherTimeout(cfg.Cycle.GatherTimeout),
		cycle.WithSyncTimeout(cfg.Cycle.SyncTimeout),
		cycle.WithContextTimeout(cfg.Cycle.ContextTimeout),
		cycle.WithEvalWorkers(cfg.Cycle.EvalWorkers),
	)

	// Recorder
	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Recorder.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Recorder.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("Cycle history disabled, using noop recorder")
		} else {
			rec = sr
		}
	}
	defer rec.Close()

	// Telegram
	var (
		tn     *notifier.TelegramNotifier
		notify scheduler.Notifier
	)
	if cfg.TelegramEnabled() {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		notify = tn
	}

	// Scheduler
	sched, err := scheduler.New(ctx, cfg.Cycle.Spec, orch, actions, rec, notify, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	sched.Init(ctx)
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Info().Msg("Telegram polling started")
	}

	// HTTP API
	var srv *server.Server
	if !cfg.HTTP.Disabled {
		srv = server.New(server.Config{
			Addr:         cfg.HTTP.Addr,
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
			Log:          log,
		},
			server.NewCycleHandler(sched, src, rec, log),
			server.NewActionHandler(st, log),
		)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("HTTP server failed")
				cancel()
			}
		}()
	}

	if cfg.Cycle.RunOnStart {
		log.Info().Msg("Run on start enabled, executing cycle now")
		go sched.RunNow(ctx, model.TriggerStartup)
	}

	log.Info().Str("spec", cfg.Cycle.Spec).Msg("ActionSentinel is running")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	case <-ctx.Done():
	}

	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown failed")
		}
		stop()
	}
	cancel()
	log.Info().Msg("ActionSentinel stopped")
}

func newFetcher(cfg *config.Config, log zerolog.Logger) collector.Fetcher {
	var f collector.Fetcher
	switch cfg.Context.Provider {
	case "vstrader":
		f = collector.NewVsTraderFetcher(cfg.Context.BaseURL, cfg.Context.APIKey, cfg.Proxy, cfg.Context.Timeout)
	case "yahoo":
		f = collector.NewYahooFetcher(cfg.Proxy, cfg.Context.Timeout)
	default:
		f = collector.NewMockFetcher(cfg.Context.MockSeed)
	}
	log.Info().Str("provider", f.Name()).Msg("Market data source ready")
	return f
}
