package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

// ErrIntentNotPending is returned when updating an intent that does not
// exist or has already settled
var ErrIntentNotPending = errors.New("intent not found or already settled")

// IntentRepository defines the interface for the transaction intent journal
type IntentRepository interface {
	// Create stores a new intent
	Create(ctx context.Context, intent *entities.TransactionIntent) error

	// UpdateStatus moves a pending intent to status, setting tx hash and error
	// when given. Fails with ErrIntentNotPending once the intent has settled.
	UpdateStatus(ctx context.Context, id string, status entities.IntentStatus, txHash, errMsg *string) error

	// GetByID retrieves an intent, nil when not found
	GetByID(ctx context.Context, id string) (*entities.TransactionIntent, error)

	// ListByWallet returns the newest intents of a wallet first
	ListByWallet(ctx context.Context, wallet string, limit, offset int) ([]entities.TransactionIntent, error)

	// ListStale returns intents still in flight that were last updated before cutoff
	ListStale(ctx context.Context, before time.Time, limit int) ([]entities.TransactionIntent, error)
}
