// Package cycle runs the gather, sync and evaluate phases that keep the
// action cache current and decide which actions are ready to fire.
package cycle

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"ActionSentinel/internal/logger"
	"ActionSentinel/internal/model"
	"ActionSentinel/internal/strategy"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// EventSource yields the action events received since the previous call.
type EventSource interface {
	Fetch(ctx context.Context) ([]model.Event, error)
}

// StateCache is the working set the sync phase mutates.
type StateCache interface {
	Sync(ctx context.Context, id int64) (bool, error)
	Remove(id int64) bool
	All() []model.Action
}

// ContextProvider builds the market snapshot. It must not fail; on
// trouble it returns an empty snapshot.
type ContextProvider interface {
	Snapshot(ctx context.Context) *model.Snapshot
}

// Evaluator decides whether one action fires.
type Evaluator func(a model.Action, snap *model.Snapshot) (bool, error)

type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseGathering
	PhaseSyncing
	PhaseEvaluating
	PhaseCompleted
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseGathering:
		return "GATHERING"
	case PhaseSyncing:
		return "SYNCING"
	case PhaseEvaluating:
		return "EVALUATING"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseFailed:
		return "FAILED"
	default:
		return "IDLE"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

type Option func(*Orchestrator)

// WithGatherTimeout bounds the event fetch. Exceeding it fails the cycle.
func WithGatherTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.gatherTimeout = d }
}

// WithSyncTimeout bounds each single event sync.
func WithSyncTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.syncTimeout = d }
}

// WithContextTimeout bounds the snapshot build.
func WithContextTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.contextTimeout = d }
}

// WithEvalWorkers evaluates actions on up to n goroutines.
func WithEvalWorkers(n int) Option {
	return func(o *Orchestrator) { o.evalWorkers = n }
}

func WithEvaluator(fn Evaluator) Option {
	return func(o *Orchestrator) { o.evaluate = fn }
}

// Orchestrator runs one cycle at a time; callers serialize Run.
type Orchestrator struct {
	events   EventSource
	cache    StateCache
	provider ContextProvider
	evaluate Evaluator
	log      zerolog.Logger

	gatherTimeout  time.Duration
	syncTimeout    time.Duration
	contextTimeout time.Duration
	evalWorkers    int

	phase atomic.Int32
}

func New(events EventSource, cache StateCache, provider ContextProvider, log zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		events:   events,
		cache:    cache,
		provider: provider,
		evaluate: strategy.ShouldTake,
		log:      logger.Component(log, "cycle"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Phase returns the phase of the current or most recent cycle.
func (o *Orchestrator) Phase() Phase { return Phase(o.phase.Load()) }

func (o *Orchestrator) setPhase(p Phase) { o.phase.Store(int32(p)) }

// Run executes one full cycle and always returns a result. Only a gather
// failure marks the result unsuccessful.
func (o *Orchestrator) Run(ctx context.Context, trigger model.TriggerType) model.CycleResult {
	start := time.Now()
	res := model.CycleResult{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		StartedAt: start,
		Results:   []model.EvaluationResult{},
	}
	log := o.log.With().Str("cycle_id", res.ID).Str("trigger", string(trigger)).Logger()
	log.Info().Msg("Starting service cycle")

	o.setPhase(PhaseGathering)
	events, err := o.gather(ctx)
	if err != nil {
		o.setPhase(PhaseFailed)
		res.Duration = time.Since(start)
		res.Error = err.Error()
		log.Error().Err(err).Dur("duration", res.Duration).Msg("Service cycle failed")
		return res
	}
	res.MessagesProcessed = len(events)
	if len(events) > 0 {
		counts := model.CountByKind(events)
		log.Info().
			Int("added", counts[model.EventAdded]).
			Int("updated", counts[model.EventUpdated]).
			Int("deleted", counts[model.EventDeleted]).
			Msg("Gathered events")
	}

	o.setPhase(PhaseSyncing)
	res.Synced, res.SyncSkipped, res.SyncFailed = o.syncAll(ctx, log, events)

	o.setPhase(PhaseEvaluating)
	res.Results = o.evaluateAll(ctx, log)

	o.setPhase(PhaseCompleted)
	res.Duration = time.Since(start)
	res.Successful = true
	log.Info().
		Int("messages", res.MessagesProcessed).
		Int("evaluated", res.ActionsEvaluated()).
		Int("ready", res.ActionsReady()).
		Int("errors", res.EvaluationErrors()).
		Dur("duration", res.Duration).
		Msg("Service cycle completed")
	return res
}

func (o *Orchestrator) gather(ctx context.Context) (events []model.Event, err error) {
	if o.gatherTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.gatherTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			events, err = nil, fmt.Errorf("message gathering panicked: %v", r)
		}
	}()

	events, err = o.events.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("message gathering failed: %w", err)
	}
	return events, nil
}

func (o *Orchestrator) syncAll(ctx context.Context, log zerolog.Logger, events []model.Event) (synced, skipped, failed int) {
	for _, e := range events {
		applied, err := o.syncOne(ctx, e)
		switch {
		case err != nil:
			failed++
			log.Error().Err(err).Stringer("event", e).Msg("Failed to sync action")
		case applied:
			synced++
		default:
			skipped++
		}
	}
	if len(events) > 0 {
		log.Info().Int("synced", synced).Int("skipped", skipped).Int("failed", failed).Msg("Synced action state")
	}
	return synced, skipped, failed
}

func (o *Orchestrator) syncOne(ctx context.Context, e model.Event) (applied bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			applied, err = false, fmt.Errorf("sync panicked: %v", r)
		}
	}()

	switch e.Kind {
	case model.EventAdded, model.EventUpdated:
		if o.syncTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.syncTimeout)
			defer cancel()
		}
		return o.cache.Sync(ctx, e.ActionID)
	case model.EventDeleted:
		o.cache.Remove(e.ActionID)
		return true, nil
	default:
		o.log.Warn().Str("kind", string(e.Kind)).Int64("action_id", e.ActionID).Msg("Unknown event kind, skipping")
		return false, nil
	}
}

func (o *Orchestrator) evaluateAll(ctx context.Context, log zerolog.Logger) []model.EvaluationResult {
	actions := o.cache.All()
	snap := o.snapshot(ctx)

	results := make([]model.EvaluationResult, len(actions))
	if o.evalWorkers <= 1 || len(actions) <= 1 {
		for i, a := range actions {
			results[i] = o.evaluateOne(a, snap)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(o.evalWorkers)
		for i, a := range actions {
			g.Go(func() error {
				results[i] = o.evaluateOne(a, snap)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, r := range results {
		switch {
		case r.HasError():
			log.Error().Int64("action_id", r.Action.ID).Str("error", r.Error).Msg("Action evaluation failed")
		case r.ShouldExecute:
			log.Info().Int64("action_id", r.Action.ID).Str("kind", string(r.Action.Kind)).
				Str("user_id", r.Action.UserID).Msg("Action ready for execution")
		}
	}
	return results
}

func (o *Orchestrator) evaluateOne(a model.Action, snap *model.Snapshot) (res model.EvaluationResult) {
	res.Action = a
	defer func() {
		if r := recover(); r != nil {
			o.log.Debug().Bytes("stack", debug.Stack()).Int64("action_id", a.ID).Msg("Recovered evaluation panic")
			res.ShouldExecute = false
			res.Error = fmt.Sprintf("evaluation panicked: %v", r)
		}
	}()

	ok, err := o.evaluate(a, snap)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.ShouldExecute = ok
	return res
}

func (o *Orchestrator) snapshot(ctx context.Context) (snap *model.Snapshot) {
	if o.contextTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.contextTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			o.log.Error().Interface("panic", r).Msg("Context provider panicked, using empty snapshot")
			snap = model.EmptySnapshot(time.Now())
		}
	}()

	snap = o.provider.Snapshot(ctx)
	if snap == nil {
		snap = model.EmptySnapshot(time.Now())
	}
	return snap
}
