package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"ActionSentinel/internal/logger"
	"ActionSentinel/internal/model"

	"github.com/rs/zerolog"
)

var ErrQueueClosed = errors.New("event queue closed")

// Queue is an in-memory event feed for demos and tests. Fetch drains the
// queue and keeps only events stamped after the previous drain.
type Queue struct {
	mu            sync.Mutex
	pending       []model.Event
	lastProcessed time.Time
	closed        bool
	now           func() time.Time
	log           zerolog.Logger
}

// NewQueue returns an empty queue whose first Fetch accepts events from the
// last hour.
func NewQueue(log zerolog.Logger) *Queue {
	return &Queue{
		lastProcessed: time.Now().Add(-time.Hour),
		now:           time.Now,
		log:           logger.Component(log, "event_queue"),
	}
}

// Publish enqueues an event, stamping it with the current time when unset.
func (q *Queue) Publish(_ context.Context, e model.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = q.now()
	}
	q.pending = append(q.pending, e)
	q.log.Debug().Stringer("event", e).Msg("Queued event")
	return nil
}

func (q *Queue) Fetch(ctx context.Context) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}

	cutoff := q.lastProcessed
	drained := q.pending
	q.pending = nil
	q.lastProcessed = q.now()

	out := make([]model.Event, 0, len(drained))
	for _, e := range drained {
		if e.Timestamp.After(cutoff) {
			out = append(out, e)
		}
	}
	if dropped := len(drained) - len(out); dropped > 0 {
		q.log.Warn().Int("dropped", dropped).Time("cutoff", cutoff).Msg("Dropped stale events")
	}
	q.log.Info().Int("events", len(out)).Msg("Gathered events from queue")
	return out, nil
}

func (q *Queue) Pending(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), nil
}

func (q *Queue) LastProcessed() time.Time {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastProcessed
}

// Close rejects further publishes and fetches.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.pending = nil
	q.mu.Unlock()
}
