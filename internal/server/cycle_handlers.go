package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"ActionSentinel/internal/events"
	"ActionSentinel/internal/model"
	"ActionSentinel/internal/recorder"
	"ActionSentinel/internal/scheduler"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// CycleService is the scheduler surface the cycle endpoints drive.
type CycleService interface {
	RunNow(ctx context.Context, trigger model.TriggerType) model.CycleResult
	Reinitialize(ctx context.Context) error
	Status() scheduler.Status
}

// CycleHandler serves the manual trigger and monitoring endpoints.
type CycleHandler struct {
	cycles  CycleService
	events  events.Source
	history recorder.Recorder
	log     zerolog.Logger
}

func NewCycleHandler(cycles CycleService, src events.Source, history recorder.Recorder, log zerolog.Logger) *CycleHandler {
	if history == nil {
		history = recorder.NewNoopRecorder()
	}
	return &CycleHandler{
		cycles:  cycles,
		events:  src,
		history: history,
		log:     log.With().Str("module", "cycle_handlers").Logger(),
	}
}

func (h *CycleHandler) RegisterRoutes(r chi.Router) {
	r.Route("/service-cycle", func(r chi.Router) {
		r.Post("/execute", h.Execute)
		r.Get("/status", h.Status)
		r.Post("/initialize-state", h.InitializeState)
		r.Post("/test/add-message", h.AddTestMessage)
		r.Get("/history", h.History)
	})
}

// Execute runs a cycle now and returns its result.
func (h *CycleHandler) Execute(w http.ResponseWriter, r *http.Request) {
	res := h.cycles.RunNow(r.Context(), model.TriggerManual)
	writeJSON(h.log, w, http.StatusOK, cycleResponse(res))
}

// CycleResponse is the JSON shape of a cycle result.
type CycleResponse struct {
	model.CycleResult
	DurationMs       int64 `json:"duration_ms"`
	ActionsEvaluated int   `json:"actions_evaluated"`
	ActionsReady     int   `json:"actions_ready"`
	EvaluationErrors int   `json:"evaluation_errors"`
}

func cycleResponse(res model.CycleResult) CycleResponse {
	return CycleResponse{
		CycleResult:      res,
		DurationMs:       res.Duration.Milliseconds(),
		ActionsEvaluated: res.ActionsEvaluated(),
		ActionsReady:     res.ActionsReady(),
		EvaluationErrors: res.EvaluationErrors(),
	}
}

// StatusResponse is the monitoring view of the cycle system.
type StatusResponse struct {
	ActionCount       int            `json:"action_count"`
	Phase             string         `json:"phase"`
	Running           bool           `json:"running"`
	Runs              int64          `json:"runs"`
	Skipped           int64          `json:"skipped"`
	Spec              string         `json:"spec"`
	NextRun           *time.Time     `json:"next_run,omitempty"`
	PendingMessages   int            `json:"pending_messages"`
	LastProcessedTime *time.Time     `json:"last_processed_time,omitempty"`
	LastCycle         *CycleResponse `json:"last_cycle,omitempty"`
	Process           *ProcessStats  `json:"process,omitempty"`
	SystemTime        time.Time      `json:"system_time"`
}

// ProcessStats is the memory footprint of this process.
type ProcessStats struct {
	RSSBytes   uint64 `json:"rss_bytes"`
	VMSBytes   uint64 `json:"vms_bytes"`
	NumThreads int32  `json:"num_threads"`
}

// Status reports cache size, scheduler state and event backlog.
func (h *CycleHandler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.cycles.Status()
	resp := StatusResponse{
		ActionCount: st.CacheSize,
		Phase:       st.Phase.String(),
		Running:     st.Running,
		Runs:        st.Runs,
		Skipped:     st.Skipped,
		Spec:        st.Spec,
		SystemTime:  time.Now(),
	}
	if !st.NextRun.IsZero() {
		resp.NextRun = &st.NextRun
	}
	if st.LastResult != nil {
		last := cycleResponse(*st.LastResult)
		resp.LastCycle = &last
	}

	if h.events != nil {
		pending, err := h.events.Pending(r.Context())
		if err != nil {
			h.log.Warn().Err(err).Msg("Failed to count pending events")
		}
		resp.PendingMessages = pending
		if lp := h.events.LastProcessed(); !lp.IsZero() {
			resp.LastProcessedTime = &lp
		}
	}

	if ps, err := processStats(r.Context()); err != nil {
		h.log.Debug().Err(err).Msg("Process stats unavailable")
	} else {
		resp.Process = ps
	}

	writeJSON(h.log, w, http.StatusOK, resp)
}

func processStats(ctx context.Context) (*ProcessStats, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, err
	}
	threads, _ := p.NumThreadsWithContext(ctx)
	return &ProcessStats{RSSBytes: mem.RSS, VMSBytes: mem.VMS, NumThreads: threads}, nil
}

// InitializeState reloads the cache from the database.
func (h *CycleHandler) InitializeState(w http.ResponseWriter, r *http.Request) {
	if err := h.cycles.Reinitialize(r.Context()); err != nil {
		h.log.Error().Err(err).Msg("State initialization failed")
		writeError(h.log, w, http.StatusInternalServerError, "Failed to initialize state: "+err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, map[string]interface{}{
		"status":      "success",
		"message":     "Action state initialized successfully",
		"actionCount": h.cycles.Status().CacheSize,
	})
}

// AddTestMessage publishes a synthetic action event.
func (h *CycleHandler) AddTestMessage(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(h.log, w, http.StatusServiceUnavailable, "no event source configured")
		return
	}
	q := r.URL.Query()

	kind, err := model.ParseEventKind(q.Get("eventType"))
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, err.Error())
		return
	}
	actionID, err := strconv.ParseInt(q.Get("actionId"), 10, 64)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "actionId must be an integer")
		return
	}
	userID := q.Get("userId")
	if userID == "" {
		userID = "testUser"
	}

	e := model.Event{Kind: kind, ActionID: actionID, UserID: userID, Timestamp: time.Now()}
	if err := h.events.Publish(r.Context(), e); err != nil {
		h.log.Error().Err(err).Msg("Failed to publish test message")
		writeError(h.log, w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(h.log, w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Test message added: %s", e),
	})
}

// History lists recent recorded cycles, newest first.
func (h *CycleHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(h.log, w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	runs, err := h.history.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to read cycle history")
		writeError(h.log, w, http.StatusInternalServerError, "Failed to read cycle history")
		return
	}
	writeJSON(h.log, w, http.StatusOK, runs)
}
