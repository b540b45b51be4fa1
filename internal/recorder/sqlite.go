package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ActionSentinel/internal/logger"
	"ActionSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists cycle history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while cycles write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: logger.Component(log, "recorder")}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("SQLite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycle_runs (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id           TEXT NOT NULL,
			trigger_type       TEXT NOT NULL,
			started_at         INTEGER NOT NULL,
			duration_us        INTEGER NOT NULL,
			messages_processed INTEGER NOT NULL,
			synced             INTEGER NOT NULL,
			sync_failed        INTEGER NOT NULL,
			actions_evaluated  INTEGER NOT NULL,
			actions_ready      INTEGER NOT NULL,
			evaluation_errors  INTEGER NOT NULL,
			successful         INTEGER NOT NULL,
			error              TEXT,
			outcomes           BLOB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycle_runs_started ON cycle_runs(started_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(ctx context.Context, res model.CycleResult) error {
	run := NewRun(res)
	blob, err := msgpack.Marshal(run.Outcomes)
	if err != nil {
		return fmt.Errorf("encode outcomes: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.ExecContext(ctx, `INSERT INTO cycle_runs
		(cycle_id, trigger_type, started_at, duration_us, messages_processed, synced, sync_failed,
		 actions_evaluated, actions_ready, evaluation_errors, successful, error, outcomes)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		run.CycleID, run.Trigger, run.StartedAt.UnixMilli(), run.Duration.Microseconds(),
		run.Messages, run.Synced, run.SyncFailed,
		run.Evaluated, run.Ready, run.Errors, run.Successful, run.Error, blob,
	)
	if err != nil {
		return fmt.Errorf("insert cycle run: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `SELECT
		cycle_id, trigger_type, started_at, duration_us, messages_processed, synced, sync_failed,
		actions_evaluated, actions_ready, evaluation_errors, successful, error, outcomes
		FROM cycle_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycle runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			run        Run
			startedAt  int64
			durationUs int64
			errMsg     sql.NullString
			blob       []byte
		)
		if err := rows.Scan(&run.CycleID, &run.Trigger, &startedAt, &durationUs,
			&run.Messages, &run.Synced, &run.SyncFailed,
			&run.Evaluated, &run.Ready, &run.Errors, &run.Successful, &errMsg, &blob); err != nil {
			return nil, fmt.Errorf("scan cycle run: %w", err)
		}
		run.StartedAt = time.UnixMilli(startedAt).UTC()
		run.Duration = time.Duration(durationUs) * time.Microsecond
		run.Error = errMsg.String
		if len(blob) > 0 {
			if err := msgpack.Unmarshal(blob, &run.Outcomes); err != nil {
				return nil, fmt.Errorf("decode outcomes of %s: %w", run.CycleID, err)
			}
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("Closing sqlite recorder")
	return r.db.Close()
}
