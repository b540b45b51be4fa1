package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"ActionSentinel/internal/model"
	"ActionSentinel/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ActionStore is the persistence surface behind the action endpoints.
type ActionStore interface {
	Create(ctx context.Context, def model.Definition) (model.Action, error)
	Get(ctx context.Context, id int64) (model.Action, error)
	Patch(ctx context.Context, id int64, p store.Patch) (model.Action, error)
	Delete(ctx context.Context, id int64) error
	Query(ctx context.Context, c store.Criteria) (store.Page, error)
}

// ActionHandler serves per-user action CRUD and the paged query.
type ActionHandler struct {
	store ActionStore
	log   zerolog.Logger
}

func NewActionHandler(s ActionStore, log zerolog.Logger) *ActionHandler {
	return &ActionHandler{
		store: s,
		log:   log.With().Str("module", "action_handlers").Logger(),
	}
}

func (h *ActionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/actions", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Post("/{userId}", h.Create)
		r.Get("/{userId}/{id}", h.Get)
		r.Put("/{userId}/{id}", h.Update)
		r.Delete("/{userId}/{id}", h.Delete)
	})
}

// ActionRequest is the create body. Type and Kind are synonyms, as are
// TriggerBelow and PriceIsLessThanTarget.
type ActionRequest struct {
	Description           string  `json:"description"`
	Type                  string  `json:"type"`
	Kind                  string  `json:"kind"`
	ContextDomain         string  `json:"context_domain"`
	ContextID             string  `json:"context_id"`
	TargetPrice           float64 `json:"target_price"`
	DivergenceTolerance   float64 `json:"divergence_tolerance"`
	TriggerBelow          *bool   `json:"trigger_below"`
	PriceIsLessThanTarget *bool   `json:"priceIsLessThanTarget"`
	PurchasePrice         float64 `json:"purchase_price"`
	StopLossPercent       float64 `json:"stop_loss_percent"`
}

func (req ActionRequest) definition(userID string) (model.Definition, error) {
	name := req.Kind
	if name == "" {
		name = req.Type
	}
	kind, err := model.ParseKind(name)
	if err != nil {
		return model.Definition{}, err
	}
	domain, err := model.ParseDomain(req.ContextDomain)
	if err != nil {
		return model.Definition{}, err
	}
	below := kind == model.KindSellOnDivergence || kind == model.KindStopLoss
	switch {
	case req.TriggerBelow != nil:
		below = *req.TriggerBelow
	case req.PriceIsLessThanTarget != nil:
		below = *req.PriceIsLessThanTarget
	}
	return model.Definition{
		UserID:          userID,
		Description:     req.Description,
		Kind:            kind,
		Domain:          domain,
		Symbol:          req.ContextID,
		TargetPrice:     req.TargetPrice,
		Tolerance:       req.DivergenceTolerance,
		TriggerBelow:    below,
		PurchasePrice:   req.PurchasePrice,
		StopLossPercent: req.StopLossPercent,
	}, nil
}

// Create stores a new action for the user.
func (h *ActionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	def, err := req.definition(userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	a, err := h.store.Create(r.Context(), def)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(h.log, w, http.StatusCreated, a)
}

// Get returns one of the user's actions.
func (h *ActionHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, ok := h.owned(w, r)
	if !ok {
		return
	}
	writeJSON(h.log, w, http.StatusOK, a)
}

// Update applies a partial change to one of the user's actions.
func (h *ActionHandler) Update(w http.ResponseWriter, r *http.Request) {
	a, ok := h.owned(w, r)
	if !ok {
		return
	}
	var p store.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(h.log, w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := h.store.Patch(r.Context(), a.ID, p)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, updated)
}

// Delete removes one of the user's actions.
func (h *ActionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	a, ok := h.owned(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), a.ID); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Query returns a page of actions matching the criteria body.
func (h *ActionHandler) Query(w http.ResponseWriter, r *http.Request) {
	var c store.Criteria
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			writeError(h.log, w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	page, err := h.store.Query(r.Context(), c)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(h.log, w, http.StatusOK, page)
}

// owned loads the action named in the path and checks it belongs to the
// user in the path. It writes the error response itself.
func (h *ActionHandler) owned(w http.ResponseWriter, r *http.Request) (model.Action, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(h.log, w, http.StatusBadRequest, "id must be an integer")
		return model.Action{}, false
	}
	a, err := h.store.Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return model.Action{}, false
	}
	if a.UserID != chi.URLParam(r, "userId") {
		writeError(h.log, w, http.StatusNotFound, "action not found")
		return model.Action{}, false
	}
	return a, true
}

func (h *ActionHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(h.log, w, http.StatusNotFound, "action not found")
	case errors.Is(err, model.ErrInvalidAction),
		errors.Is(err, model.ErrUnknownKind),
		errors.Is(err, model.ErrUnknownDomain),
		errors.Is(err, store.ErrInvalidCriteria):
		writeError(h.log, w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("Action request failed")
		writeError(h.log, w, http.StatusInternalServerError, "internal error")
	}
}
