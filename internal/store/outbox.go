package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ActionSentinel/internal/model"
)

func (s *Store) appendEvent(ctx context.Context, q queryRower, kind model.EventKind, actionID int64, userID string) (int64, error) {
	var seq int64
	err := q.QueryRowContext(ctx,
		s.rebind(`INSERT INTO action_events (kind, action_id, user_id, created_at) VALUES (?,?,?,?) RETURNING seq`),
		string(kind), actionID, userID, toMillis(time.Now()),
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append %s event for action %d: %w", kind, actionID, err)
	}
	return seq, nil
}

// AppendEvent writes an event to the outbox without touching the action
// table. It returns the assigned sequence number.
func (s *Store) AppendEvent(ctx context.Context, e model.Event) (int64, error) {
	return s.appendEvent(ctx, s.db, e.Kind, e.ActionID, e.UserID)
}

// EventsAfter returns up to limit outbox events with seq greater than after,
// oldest first.
func (s *Store) EventsAfter(ctx context.Context, after int64, limit int) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT seq, kind, action_id, user_id, created_at FROM action_events
			WHERE seq > ? ORDER BY seq LIMIT ?`),
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	defer rows.Close()

	var out []model.Event
	for rows.Next() {
		var (
			e    model.Event
			kind string
			ts   int64
		)
		if err := rows.Scan(&e.Seq, &kind, &e.ActionID, &e.UserID, &ts); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Kind = model.EventKind(kind)
		e.Timestamp = fromMillis(ts)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	return out, nil
}

// LatestEventSeq returns the newest outbox sequence number, or 0 when the
// outbox is empty.
func (s *Store) LatestEventSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM action_events`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("latest outbox seq: %w", err)
	}
	return seq.Int64, nil
}

// CountEventsAfter returns how many outbox events have seq greater than after.
func (s *Store) CountEventsAfter(ctx context.Context, after int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM action_events WHERE seq > ?`), after).Scan(&n); err != nil {
		return 0, fmt.Errorf("count outbox events: %w", err)
	}
	return n, nil
}
