package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/application/services"
)

// WalletHandler serves per-wallet reads and the token selection
type WalletHandler struct {
	positions *services.PositionService
	selection *services.SelectionService
	sequencer *services.SequencerService
	logger    *zap.Logger
}

func NewWalletHandler(
	positions *services.PositionService,
	selection *services.SelectionService,
	sequencer *services.SequencerService,
	logger *zap.Logger,
) *WalletHandler {
	return &WalletHandler{
		positions: positions,
		selection: selection,
		sequencer: sequencer,
		logger:    logger,
	}
}

// RegisterRoutes registers the wallet routes
func (h *WalletHandler) RegisterRoutes(r chi.Router) {
	r.Route("/wallets/{address}", func(r chi.Router) {
		r.Get("/positions/{token}", h.GetPosition)
		r.Get("/vault/{token}", h.GetVault)
		r.Get("/selection", h.GetSelection)
		r.Put("/selection", h.PutSelection)
		r.Delete("/selection", h.DeleteSelection)
		r.Get("/intents", h.GetIntents)
	})
}

// SelectionRequest is the body of PUT /wallets/{address}/selection
type SelectionRequest struct {
	Token string `json:"token"`
}

// GetPosition handles GET /api/v1/wallets/{address}/positions/{token}
func (h *WalletHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	wallet, token, ok := pairParams(w, r)
	if !ok {
		return
	}

	response, err := h.positions.GetPosition(r.Context(), wallet, token)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to get position")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetVault handles GET /api/v1/wallets/{address}/vault/{token}
func (h *WalletHandler) GetVault(w http.ResponseWriter, r *http.Request) {
	wallet, token, ok := pairParams(w, r)
	if !ok {
		return
	}

	response, err := h.positions.GetVault(r.Context(), wallet, token)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to get vault")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetSelection handles GET /api/v1/wallets/{address}/selection
func (h *WalletHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "address")

	token, err := h.selection.Get(r.Context(), wallet)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to get selection")
		return
	}

	respondJSON(w, http.StatusOK, services.SelectionResponse{Data: token})
}

// PutSelection handles PUT /api/v1/wallets/{address}/selection
func (h *WalletHandler) PutSelection(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "address")

	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !isValidAddress(req.Token) {
		respondError(w, http.StatusBadRequest, "Invalid token address format")
		return
	}

	token, err := h.selection.Select(r.Context(), wallet, req.Token)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to set selection")
		return
	}

	respondJSON(w, http.StatusOK, services.SelectionResponse{Data: token})
}

// DeleteSelection handles DELETE /api/v1/wallets/{address}/selection
func (h *WalletHandler) DeleteSelection(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "address")

	if err := h.selection.Clear(r.Context(), wallet); err != nil {
		respondServiceError(w, h.logger, err, "Failed to clear selection")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetIntents handles GET /api/v1/wallets/{address}/intents
func (h *WalletHandler) GetIntents(w http.ResponseWriter, r *http.Request) {
	wallet := chi.URLParam(r, "address")

	limit := 20
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil && o >= 0 {
			offset = o
		}
	}

	response, err := h.sequencer.History(r.Context(), wallet, limit, offset)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to get intents")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

func pairParams(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	wallet := chi.URLParam(r, "address")
	token := chi.URLParam(r, "token")

	if !isValidAddress(wallet) {
		respondError(w, http.StatusBadRequest, "Invalid wallet address format")
		return "", "", false
	}
	if !isValidAddress(token) {
		respondError(w, http.StatusBadRequest, "Invalid token address format")
		return "", "", false
	}
	return wallet, token, true
}
