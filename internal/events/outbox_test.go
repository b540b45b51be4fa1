package events

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"ActionSentinel/internal/model"
	"ActionSentinel/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memOutbox struct {
	mu      sync.Mutex
	events  []model.Event
	failing error
}

func (m *memOutbox) AppendEvent(_ context.Context, e model.Event) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.Seq = int64(len(m.events) + 1)
	m.events = append(m.events, e)
	return e.Seq, nil
}

func (m *memOutbox) EventsAfter(_ context.Context, after int64, limit int) ([]model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, m.failing
	}
	var out []model.Event
	for _, e := range m.events {
		if e.Seq > after && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memOutbox) LatestEventSeq(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.events)), nil
}

func (m *memOutbox) CountEventsAfter(_ context.Context, after int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Seq > after {
			n++
		}
	}
	return n, nil
}

func TestOutbox_PagesThroughBacklog(t *testing.T) {
	mem := &memOutbox{}
	o := NewOutbox(mem, 2, zerolog.Nop())
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, o.Publish(ctx, model.Event{Kind: model.EventAdded, ActionID: i}))
	}
	n, err := o.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := o.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, int64(5), o.Offset())
	assert.False(t, o.LastProcessed().IsZero())

	got, err = o.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOutbox_FailedFetchKeepsOffset(t *testing.T) {
	mem := &memOutbox{}
	o := NewOutbox(mem, 10, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, o.Publish(ctx, model.Event{Kind: model.EventAdded, ActionID: 1}))
	mem.failing = errors.New("connection reset")

	_, err := o.Fetch(ctx)
	assert.ErrorIs(t, err, mem.failing)
	assert.EqualError(t, err, "read outbox backlog: connection reset")
	assert.Zero(t, o.Offset())

	mem.failing = nil
	got, err := o.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOutbox_SeekLatestSkipsHistory(t *testing.T) {
	mem := &memOutbox{}
	o := NewOutbox(mem, 0, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, o.Publish(ctx, model.Event{Kind: model.EventAdded, ActionID: 1}))
	require.NoError(t, o.SeekLatest(ctx))
	require.NoError(t, o.Publish(ctx, model.Event{Kind: model.EventDeleted, ActionID: 1}))

	got, err := o.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventDeleted, got[0].Kind)
}

func TestOutbox_WithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(ctx, store.Config{Driver: store.DriverSQLite, DSN: filepath.Join(t.TempDir(), "events.db")}, zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	o := NewOutbox(s, 1, zerolog.Nop())
	a, err := s.Create(ctx, model.Definition{UserID: "u", Kind: model.KindBuyOnDivergence,
		Domain: model.DomainStockPrices, Symbol: "AAPL", TargetPrice: 10, Tolerance: 1})
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, a.ID))

	got, err := o.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.EventAdded, got[0].Kind)
	assert.Equal(t, model.EventDeleted, got[1].Kind)
	assert.Equal(t, a.ID, got[1].ActionID)
}
