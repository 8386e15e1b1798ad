package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/application/services"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps service sentinels to status codes. Anything
// unrecognised is logged and reported as a 500 with the fallback message.
func respondServiceError(w http.ResponseWriter, logger *zap.Logger, err error, fallback string) {
	if status, ok := statusFor(err); ok {
		respondError(w, status, err.Error())
		return
	}

	logger.Error(fallback, zap.Error(err))
	respondError(w, http.StatusInternalServerError, fallback)
}

func statusFor(err error) (int, bool) {
	switch {
	case errors.Is(err, services.ErrInvalidAddress):
		return http.StatusBadRequest, true
	case errors.Is(err, services.ErrTokenNotFound), errors.Is(err, services.ErrIntentNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, sequencer.ErrIntentInFlight), errors.Is(err, services.ErrSelectionLocked):
		return http.StatusConflict, true
	case errors.Is(err, services.ErrNoWallet):
		return http.StatusPreconditionFailed, true
	case errors.Is(err, services.ErrWalletMismatch):
		return http.StatusForbidden, true
	case errors.Is(err, services.ErrActionDisabled):
		return http.StatusUnprocessableEntity, true
	default:
		return 0, false
	}
}

func isValidAddress(addr string) bool {
	return common.IsHexAddress(addr) && len(addr) == 42
}
