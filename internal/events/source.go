// Package events supplies the cycle with action change notifications.
package events

import (
	"context"
	"time"

	"ActionSentinel/internal/model"
)

// Source is an event feed the cycle gathers from and the API can inject into.
type Source interface {
	// Fetch returns every event since the previous successful Fetch.
	Fetch(ctx context.Context) ([]model.Event, error)
	Publish(ctx context.Context, e model.Event) error
	// Pending is the number of events the next Fetch would return.
	Pending(ctx context.Context) (int, error)
	LastProcessed() time.Time
}
