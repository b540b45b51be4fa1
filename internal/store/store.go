package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ActionSentinel/internal/logger"

	"github.com/rs/zerolog"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("action not found")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config selects and tunes the backing database.
type Config struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store persists actions and the outbox of action change events.
type Store struct {
	db     *sql.DB
	driver string
	log    zerolog.Logger
}

// Open connects to the database and runs migrations.
func Open(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	if cfg.Driver == DriverSQLite {
		if err := ensureDir(cfg.DSN); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == DriverSQLite {
		// One writer; WAL lets readers through while a transaction is open.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}

	s := &Store{
		db:     db,
		driver: cfg.Driver,
		log:    logger.Component(log, "store"),
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.log.Info().Str("driver", cfg.Driver).Msg("Action store opened")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	idCol, realCol, boolCol := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL", "INTEGER"
	if s.driver == DriverPostgres {
		idCol, realCol, boolCol = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION", "BOOLEAN"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS actions (
			id                   ` + idCol + `,
			user_id              TEXT NOT NULL,
			description          TEXT NOT NULL DEFAULT '',
			kind                 TEXT NOT NULL,
			context_domain       TEXT NOT NULL,
			context_key          TEXT NOT NULL,
			target_price         ` + realCol + ` NOT NULL,
			divergence_tolerance ` + realCol + ` NOT NULL,
			trigger_below        ` + boolCol + ` NOT NULL,
			purchase_price       ` + realCol + `,
			stop_loss_percent    ` + realCol + `,
			created_at           BIGINT NOT NULL,
			updated_at           BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_user ON actions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_actions_created ON actions(created_at)`,

		`CREATE TABLE IF NOT EXISTS action_events (
			seq        ` + idCol + `,
			kind       TEXT NOT NULL,
			action_id  BIGINT NOT NULL,
			user_id    TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
	}

	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(q), err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.log.Info().Msg("Closing action store")
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

// ensureDir creates the parent directory of a plain SQLite file path.
func ensureDir(dsn string) error {
	if dsn == "" || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}
	return nil
}

func firstLine(q string) string {
	q = strings.TrimSpace(q)
	if i := strings.IndexByte(q, '\n'); i > 0 {
		return q[:i]
	}
	return q
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
