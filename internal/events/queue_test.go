package events

import (
	"context"
	"testing"
	"time"

	"ActionSentinel/internal/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FetchDrainsInOrder(t *testing.T) {
	q := NewQueue(zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, model.Event{Kind: model.EventAdded, ActionID: 1}))
	require.NoError(t, q.Publish(ctx, model.Event{Kind: model.EventUpdated, ActionID: 2}))
	require.NoError(t, q.Publish(ctx, model.Event{Kind: model.EventDeleted, ActionID: 3}))

	n, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{got[0].ActionID, got[1].ActionID, got[2].ActionID})
	assert.False(t, got[0].Timestamp.IsZero())

	again, err := q.Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestQueue_DropsEventsOlderThanLastFetch(t *testing.T) {
	q := NewQueue(zerolog.Nop())
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	_, err := q.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, now, q.LastProcessed())

	require.NoError(t, q.Publish(ctx, model.Event{Kind: model.EventAdded, ActionID: 1, Timestamp: now.Add(-time.Minute)}))
	require.NoError(t, q.Publish(ctx, model.Event{Kind: model.EventAdded, ActionID: 2, Timestamp: now.Add(time.Minute)}))

	now = now.Add(time.Hour)
	got, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ActionID)
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue(zerolog.Nop())
	q.Close()

	assert.ErrorIs(t, q.Publish(context.Background(), model.Event{Kind: model.EventAdded}), ErrQueueClosed)
	_, err := q.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestQueue_FetchHonoursContext(t *testing.T) {
	q := NewQueue(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Fetch(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
