package model

import (
	"fmt"
	"strings"
	"time"
)

// EventKind is the type of change an action event announces.
type EventKind string

const (
	EventAdded   EventKind = "ACTION_ADDED"
	EventUpdated EventKind = "ACTION_UPDATED"
	EventDeleted EventKind = "ACTION_DELETED"
)

// ParseEventKind accepts the wire names, with or without the ACTION_ prefix.
func ParseEventKind(s string) (EventKind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(name, "ACTION_") {
		name = "ACTION_" + name
	}
	switch k := EventKind(name); k {
	case EventAdded, EventUpdated, EventDeleted:
		return k, nil
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// Event notifies the cycle that an action changed upstream.
type Event struct {
	Seq       int64     `json:"seq,omitempty"`
	Kind      EventKind `json:"event_type"`
	ActionID  int64     `json:"action_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s(action=%d user=%s at=%s)", e.Kind, e.ActionID, e.UserID, e.Timestamp.Format(time.RFC3339))
}

// CountByKind tallies events per kind.
func CountByKind(events []Event) map[EventKind]int {
	counts := make(map[EventKind]int, 3)
	for _, e := range events {
		counts[e.Kind]++
	}
	return counts
}
