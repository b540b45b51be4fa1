package recorder

import (
	"context"
	"time"

	"ActionSentinel/internal/model"
)

// Outcome is the stored form of one action evaluation.
type Outcome struct {
	ActionID      int64  `msgpack:"action_id" json:"action_id"`
	UserID        string `msgpack:"user_id" json:"user_id"`
	Kind          string `msgpack:"kind" json:"kind"`
	Symbol        string `msgpack:"symbol" json:"symbol"`
	ShouldExecute bool   `msgpack:"should_execute" json:"should_execute"`
	Error         string `msgpack:"error,omitempty" json:"error,omitempty"`
}

// Run is one recorded cycle.
type Run struct {
	CycleID    string        `json:"cycle_id"`
	Trigger    string        `json:"trigger"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Messages   int           `json:"messages_processed"`
	Synced     int           `json:"synced"`
	SyncFailed int           `json:"sync_failed"`
	Evaluated  int           `json:"actions_evaluated"`
	Ready      int           `json:"actions_ready"`
	Errors     int           `json:"evaluation_errors"`
	Successful bool          `json:"successful"`
	Error      string        `json:"error,omitempty"`
	Outcomes   []Outcome     `json:"outcomes"`
}

// NewRun flattens a cycle result for storage.
func NewRun(res model.CycleResult) Run {
	run := Run{
		CycleID:    res.ID,
		Trigger:    string(res.Trigger),
		StartedAt:  res.StartedAt,
		Duration:   res.Duration,
		Messages:   res.MessagesProcessed,
		Synced:     res.Synced,
		SyncFailed: res.SyncFailed,
		Evaluated:  res.ActionsEvaluated(),
		Ready:      res.ActionsReady(),
		Errors:     res.EvaluationErrors(),
		Successful: res.Successful,
		Error:      res.Error,
		Outcomes:   make([]Outcome, 0, len(res.Results)),
	}
	for _, r := range res.Results {
		run.Outcomes = append(run.Outcomes, Outcome{
			ActionID:      r.Action.ID,
			UserID:        r.Action.UserID,
			Kind:          string(r.Action.Kind),
			Symbol:        r.Action.Symbol,
			ShouldExecute: r.ShouldExecute,
			Error:         r.Error,
		})
	}
	return run
}

// Recorder persists cycle history for analysis.
type Recorder interface {
	RecordCycle(ctx context.Context, res model.CycleResult) error
	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]Run, error)
	Close() error
}
