package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ActionSentinel/internal/logger"
	"ActionSentinel/internal/model"

	"github.com/rs/zerolog"
)

const defaultBatchSize = 500

// OutboxStore is the slice of the action store the outbox reader needs.
type OutboxStore interface {
	AppendEvent(ctx context.Context, e model.Event) (int64, error)
	EventsAfter(ctx context.Context, after int64, limit int) ([]model.Event, error)
	LatestEventSeq(ctx context.Context) (int64, error)
	CountEventsAfter(ctx context.Context, after int64) (int, error)
}

// Outbox reads action events written by the store. Its offset only moves
// after a whole backlog has been read, so a failed Fetch is retried in
// full on the next cycle.
type Outbox struct {
	store     OutboxStore
	batchSize int
	log       zerolog.Logger

	mu            sync.Mutex
	offset        int64
	lastProcessed time.Time
}

func NewOutbox(store OutboxStore, batchSize int, log zerolog.Logger) *Outbox {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Outbox{
		store:     store,
		batchSize: batchSize,
		log:       logger.Component(log, "event_outbox"),
	}
}

// SeekLatest moves the offset past every stored event. Called before the
// startup load so history already reflected in the load is not replayed.
func (o *Outbox) SeekLatest(ctx context.Context) error {
	seq, err := o.store.LatestEventSeq(ctx)
	if err != nil {
		return fmt.Errorf("seek outbox: %w", err)
	}
	o.mu.Lock()
	o.offset = seq
	o.mu.Unlock()
	o.log.Info().Int64("offset", seq).Msg("Outbox offset moved to latest event")
	return nil
}

func (o *Outbox) Fetch(ctx context.Context) ([]model.Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var (
		out    []model.Event
		cursor = o.offset
	)
	for {
		batch, err := o.store.EventsAfter(ctx, cursor, o.batchSize)
		if err != nil {
			return nil, fmt.Errorf("read outbox backlog: %w", err)
		}
		out = append(out, batch...)
		if len(batch) > 0 {
			cursor = batch[len(batch)-1].Seq
		}
		if len(batch) < o.batchSize {
			break
		}
	}

	o.offset = cursor
	o.lastProcessed = time.Now()
	o.log.Info().Int("events", len(out)).Int64("offset", cursor).Msg("Gathered events from outbox")
	return out, nil
}

func (o *Outbox) Publish(ctx context.Context, e model.Event) error {
	seq, err := o.store.AppendEvent(ctx, e)
	if err != nil {
		return err
	}
	o.log.Debug().Int64("seq", seq).Stringer("event", e).Msg("Published event")
	return nil
}

func (o *Outbox) Pending(ctx context.Context) (int, error) {
	return o.store.CountEventsAfter(ctx, o.Offset())
}

func (o *Outbox) LastProcessed() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastProcessed
}

// Offset is the last acknowledged sequence number.
func (o *Outbox) Offset() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.offset
}
