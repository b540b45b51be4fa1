package model

import (
	"fmt"
	"time"
)

// TriggerType indicates what started a cycle.
type TriggerType string

const (
	TriggerScheduled TriggerType = "SCHEDULED"
	TriggerManual    TriggerType = "MANUAL"
	TriggerCommand   TriggerType = "COMMAND"
	TriggerStartup   TriggerType = "STARTUP"
)

// EvaluationResult is the outcome of one action in one cycle.
type EvaluationResult struct {
	Action        Action `json:"action"`
	ShouldExecute bool   `json:"should_execute"`
	Error         string `json:"error,omitempty"`
}

// HasError reports whether the evaluation failed.
func (r EvaluationResult) HasError() bool { return r.Error != "" }

// CycleResult is the outcome of one gather/sync/evaluate run.
type CycleResult struct {
	ID                string             `json:"id"`
	Trigger           TriggerType        `json:"trigger"`
	StartedAt         time.Time          `json:"started_at"`
	MessagesProcessed int                `json:"messages_processed"`
	Synced            int                `json:"synced"`
	SyncSkipped       int                `json:"sync_skipped"`
	SyncFailed        int                `json:"sync_failed"`
	Results           []EvaluationResult `json:"evaluation_results"`
	Duration          time.Duration      `json:"duration_ns"`
	Successful        bool               `json:"successful"`
	Error             string             `json:"error,omitempty"`
}

// ActionsEvaluated is the number of evaluation results.
func (r CycleResult) ActionsEvaluated() int { return len(r.Results) }

// Ready returns the results whose action should fire.
func (r CycleResult) Ready() []EvaluationResult {
	var ready []EvaluationResult
	for _, er := range r.Results {
		if er.ShouldExecute {
			ready = append(ready, er)
		}
	}
	return ready
}

// ActionsReady is the number of actions ready for execution.
func (r CycleResult) ActionsReady() int {
	n := 0
	for _, er := range r.Results {
		if er.ShouldExecute {
			n++
		}
	}
	return n
}

// EvaluationErrors is the number of actions whose evaluation failed.
func (r CycleResult) EvaluationErrors() int {
	n := 0
	for _, er := range r.Results {
		if er.HasError() {
			n++
		}
	}
	return n
}

func (r CycleResult) String() string {
	return fmt.Sprintf("cycle %s: messages=%d evaluated=%d ready=%d errors=%d duration=%s successful=%v",
		r.ID, r.MessagesProcessed, r.ActionsEvaluated(), r.ActionsReady(), r.EvaluationErrors(), r.Duration, r.Successful)
}
