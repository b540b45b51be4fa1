package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"ActionSentinel/internal/cycle"
	"ActionSentinel/internal/logger"
	"ActionSentinel/internal/model"
	"ActionSentinel/internal/notifier"
	"ActionSentinel/internal/recorder"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const DefaultSpec = "@every 30s"

// Runner executes one cycle.
type Runner interface {
	Run(ctx context.Context, trigger model.TriggerType) model.CycleResult
	Phase() cycle.Phase
}

// StateLoader is the cache surface the scheduler manages.
type StateLoader interface {
	Initialize(ctx context.Context) error
	Len() int
}

// Notifier delivers cycle reports.
type Notifier interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	Spec       string             `json:"spec"`
	Running    bool               `json:"running"`
	Phase      cycle.Phase        `json:"phase"`
	CacheSize  int                `json:"cache_size"`
	Runs       int64              `json:"runs"`
	Skipped    int64              `json:"skipped"`
	NextRun    time.Time          `json:"next_run,omitempty"`
	LastResult *model.CycleResult `json:"last_result,omitempty"`
}

// Scheduler fires the cycle on a cron spec and on demand. At most one
// cycle or reload runs at a time: scheduled ticks that find one in flight
// are skipped, manual calls wait for it.
type Scheduler struct {
	cron     *cron.Cron
	spec     string
	entry    cron.EntryID
	runner   Runner
	state    StateLoader
	recorder recorder.Recorder
	notifier Notifier
	log      zerolog.Logger
	ctx      context.Context

	guard   sync.Mutex
	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
	notify  sync.WaitGroup

	lastMu sync.RWMutex
	last   *model.CycleResult
}

// New creates a Scheduler and registers the cycle under spec. ctx bounds
// scheduled cycles and notifications. notifier may be nil.
func New(ctx context.Context, spec string, runner Runner, state StateLoader, rec recorder.Recorder, n Notifier, log zerolog.Logger) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSpec
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	log = logger.Component(log, "scheduler")
	cl := cronLogger{log: log}

	s := &Scheduler{
		cron:     cron.New(cron.WithSeconds(), cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		spec:     spec,
		runner:   runner,
		state:    state,
		recorder: rec,
		notifier: n,
		log:      log,
		ctx:      ctx,
	}
	id, err := s.cron.AddFunc(spec, s.RunScheduled)
	if err != nil {
		return nil, fmt.Errorf("register cycle task %q: %w", spec, err)
	}
	s.entry = id
	return s, nil
}

// Init loads the cache once at startup. A failure is logged; the first
// cycles then run against an empty cache.
func (s *Scheduler) Init(ctx context.Context) {
	if err := s.Reinitialize(ctx); err != nil {
		s.log.Error().Err(err).Msg("Startup state initialization failed, continuing with empty cache")
	}
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("Scheduler started")
}

// Stop stops the cron scheduler and waits for a running cycle and any
// pending notifications.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.notify.Wait()
	s.log.Info().Msg("Scheduler stopped")
}

// RunScheduled is the cron entry. It skips the tick when a cycle is
// already running.
func (s *Scheduler) RunScheduled() {
	if !s.guard.TryLock() {
		n := s.skipped.Add(1)
		s.log.Warn().Int64("skipped", n).Msg("Previous cycle still running, skipping scheduled tick")
		return
	}
	res := s.runLocked(s.ctx, model.TriggerScheduled)
	s.guard.Unlock()
	s.afterCycle(res)
}

// RunNow runs a cycle immediately, waiting for any in-flight cycle first.
func (s *Scheduler) RunNow(ctx context.Context, trigger model.TriggerType) model.CycleResult {
	if trigger == "" {
		trigger = model.TriggerManual
	}
	s.guard.Lock()
	res := s.runLocked(ctx, trigger)
	s.guard.Unlock()
	s.afterCycle(res)
	return res
}

// Reinitialize reloads the whole cache from persistence. It never overlaps
// a cycle. On failure the previous cache contents stay in place.
func (s *Scheduler) Reinitialize(ctx context.Context) error {
	s.guard.Lock()
	defer s.guard.Unlock()
	return s.state.Initialize(ctx)
}

// CacheSize is the number of cached actions.
func (s *Scheduler) CacheSize() int { return s.state.Len() }

// LastResult returns the most recent cycle result, if any.
func (s *Scheduler) LastResult() *model.CycleResult {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}

func (s *Scheduler) Status() Status {
	st := Status{
		Spec:       s.spec,
		Running:    s.running.Load(),
		Phase:      s.runner.Phase(),
		CacheSize:  s.state.Len(),
		Runs:       s.runs.Load(),
		Skipped:    s.skipped.Load(),
		LastResult: s.LastResult(),
	}
	if e := s.cron.Entry(s.entry); e.Valid() {
		st.NextRun = e.Next
	}
	return st
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	name := ""
	if fields := strings.Fields(command); len(fields) > 0 {
		name = strings.ToLower(fields[0])
	}
	switch name {
	case "/cycle", "/run":
		res := s.RunNow(ctx, model.TriggerCommand)
		if s.notifier != nil && s.shouldNotify(res) {
			// afterCycle already delivered the full report.
			return ""
		}
		return notifier.FormatCycleReport(res)
	case "/status":
		st := s.Status()
		return notifier.FormatStatus(notifier.StatusReport{
			CacheSize:  st.CacheSize,
			Phase:      st.Phase.String(),
			Running:    st.Running,
			Runs:       st.Runs,
			Skipped:    st.Skipped,
			NextRun:    st.NextRun,
			LastResult: st.LastResult,
		})
	case "/reload":
		if err := s.Reinitialize(ctx); err != nil {
			return fmt.Sprintf("❌ Reload failed: %v", err)
		}
		return fmt.Sprintf("✅ Reloaded %d actions", s.CacheSize())
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) runLocked(ctx context.Context, trigger model.TriggerType) model.CycleResult {
	s.running.Store(true)
	defer s.running.Store(false)

	res := s.runner.Run(ctx, trigger)
	s.runs.Add(1)

	s.lastMu.Lock()
	s.last = &res
	s.lastMu.Unlock()

	if err := s.recorder.RecordCycle(ctx, res); err != nil {
		s.log.Error().Err(err).Str("cycle_id", res.ID).Msg("Failed to record cycle")
	}
	return res
}

func (s *Scheduler) shouldNotify(res model.CycleResult) bool {
	return !res.Successful || res.ActionsReady() > 0
}

func (s *Scheduler) afterCycle(res model.CycleResult) {
	if s.notifier == nil || !s.shouldNotify(res) {
		return
	}
	report := notifier.FormatCycleReport(res)
	s.notify.Add(1)
	go func() {
		defer s.notify.Done()
		if err := s.notifier.SendWithRetry(s.ctx, report, 3); err != nil {
			s.log.Error().Err(err).Str("cycle_id", res.ID).Msg("Failed to send cycle report")
		}
	}()
}

// cronLogger routes robfig/cron's logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
