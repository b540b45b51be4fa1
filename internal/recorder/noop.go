package recorder

import (
	"context"

	"ActionSentinel/internal/model"
)

// NoopRecorder is a no-op implementation used when history is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCycle(context.Context, model.CycleResult) error { return nil }
func (n *NoopRecorder) Recent(context.Context, int) ([]Run, error)           { return []Run{}, nil }
func (n *NoopRecorder) Close() error                                         { return nil }
