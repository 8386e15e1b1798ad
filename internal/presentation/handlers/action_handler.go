package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/application/services"
	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

// ActionHandler plans and triggers vault actions
type ActionHandler struct {
	sequencer *services.SequencerService
	logger    *zap.Logger
}

func NewActionHandler(sequencer *services.SequencerService, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{
		sequencer: sequencer,
		logger:    logger,
	}
}

// RegisterRoutes registers the action routes. write wraps the routes that
// submit transactions, typically with a stricter rate limit.
func (h *ActionHandler) RegisterRoutes(r chi.Router, write func(http.Handler) http.Handler) {
	if write == nil {
		write = func(next http.Handler) http.Handler { return next }
	}
	r.Post("/actions/plan", h.Plan)
	r.With(write).Post("/actions", h.Trigger)
	r.Get("/intents/{id}", h.GetIntent)
}

func decodeAction(w http.ResponseWriter, r *http.Request) (services.ActionRequest, bool) {
	var req services.ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return req, false
	}

	switch req.Action {
	case entities.ActionStake, entities.ActionUnstake, entities.ActionRepay:
	default:
		respondError(w, http.StatusBadRequest, "action must be one of stake, unstake, repay")
		return req, false
	}

	if req.Token != "" && !isValidAddress(req.Token) {
		respondError(w, http.StatusBadRequest, "Invalid token address format")
		return req, false
	}
	return req, true
}

// Plan handles POST /api/v1/actions/plan. A disabled plan is still a 200.
func (h *ActionHandler) Plan(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}

	preview, err := h.sequencer.Plan(r.Context(), req)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to plan action")
		return
	}

	respondJSON(w, http.StatusOK, services.PlanResponse{Data: preview})
}

// Trigger handles POST /api/v1/actions
func (h *ActionHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAction(w, r)
	if !ok {
		return
	}

	intent, err := h.sequencer.Trigger(r.Context(), req)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to trigger action")
		return
	}

	status := http.StatusAccepted
	if intent.Status == entities.StatusFailed {
		status = http.StatusBadGateway
	}
	respondJSON(w, status, services.IntentResponse{Data: intent})
}

// GetIntent handles GET /api/v1/intents/{id}
func (h *ActionHandler) GetIntent(w http.ResponseWriter, r *http.Request) {
	response, err := h.sequencer.Intent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to get intent")
		return
	}

	respondJSON(w, http.StatusOK, response)
}
