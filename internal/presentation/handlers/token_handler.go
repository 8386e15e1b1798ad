package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/application/services"
)

// TokenHandler handles HTTP requests for tokens
type TokenHandler struct {
	service *services.TokenService
	logger  *zap.Logger
}

// NewTokenHandler creates a new token handler
func NewTokenHandler(service *services.TokenService, logger *zap.Logger) *TokenHandler {
	return &TokenHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the token routes
func (h *TokenHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tokens", h.GetAllTokens)
	r.Get("/tokens/{address}", h.GetByAddress)
}

// GetAllTokens handles GET /api/v1/tokens
func (h *TokenHandler) GetAllTokens(w http.ResponseWriter, r *http.Request) {
	response, err := h.service.GetAllTokens(r.Context())
	if err != nil {
		h.logger.Error("Failed to get tokens", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get tokens")
		return
	}

	respondJSON(w, http.StatusOK, response)
}

// GetByAddress handles GET /api/v1/tokens/{address}. Unregistered tokens
// are resolved from chain.
func (h *TokenHandler) GetByAddress(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")

	if !isValidAddress(address) {
		respondError(w, http.StatusBadRequest, "Invalid address format")
		return
	}

	response, err := h.service.GetByAddress(r.Context(), address)
	if err != nil {
		respondServiceError(w, h.logger, err, "Failed to get token")
		return
	}

	respondJSON(w, http.StatusOK, response)
}
