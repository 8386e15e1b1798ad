package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
)

// Ensure IntentRepo implements IntentRepository
var _ repositories.IntentRepository = (*IntentRepo)(nil)

// IntentRepo implements IntentRepository using PostgreSQL
type IntentRepo struct {
	db *sqlx.DB
}

// NewIntentRepo creates a new intent repository
func NewIntentRepo(db *sqlx.DB) *IntentRepo {
	return &IntentRepo{db: db}
}

const intentColumns = `id, wallet_address, token_address, action, kind, amount, status, tx_hash, error, created_at, updated_at`

// Create stores a new intent
func (r *IntentRepo) Create(ctx context.Context, intent *entities.TransactionIntent) error {
	query := `
		INSERT INTO transaction_intents (id, wallet_address, token_address, action, kind, amount, status, tx_hash, error, created_at, updated_at)
		VALUES (:id, :wallet_address, :token_address, :action, :kind, :amount, :status, :tx_hash, :error, :created_at, :updated_at)
	`

	row := *intent
	row.WalletAddress = strings.ToLower(row.WalletAddress)
	row.TokenAddress = strings.ToLower(row.TokenAddress)

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("failed to create intent: %w", err)
	}

	return nil
}

// UpdateStatus moves an intent to a new status. Nil txHash or errMsg keep
// the stored value. Settled intents are never updated again.
func (r *IntentRepo) UpdateStatus(ctx context.Context, id string, status entities.IntentStatus, txHash, errMsg *string) error {
	query := `
		UPDATE transaction_intents SET
			status = $2,
			tx_hash = COALESCE($3, tx_hash),
			error = COALESCE($4, error),
			updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($5, $6)
	`

	res, err := r.db.ExecContext(ctx, query, id, status, txHash, errMsg,
		entities.StatusConfirmed,
		entities.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to update intent status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", repositories.ErrIntentNotPending, id)
	}

	return nil
}

// GetByID retrieves an intent by its ID
func (r *IntentRepo) GetByID(ctx context.Context, id string) (*entities.TransactionIntent, error) {
	var intent entities.TransactionIntent
	query := `SELECT ` + intentColumns + ` FROM transaction_intents WHERE id = $1`

	if err := r.db.GetContext(ctx, &intent, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get intent: %w", err)
	}

	return &intent, nil
}

// ListByWallet returns a wallet's intents, newest first
func (r *IntentRepo) ListByWallet(ctx context.Context, wallet string, limit, offset int) ([]entities.TransactionIntent, error) {
	var intents []entities.TransactionIntent
	query := `
		SELECT ` + intentColumns + ` FROM transaction_intents
		WHERE wallet_address = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	if err := r.db.SelectContext(ctx, &intents, query, strings.ToLower(wallet), limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}

	return intents, nil
}

// ListStale returns in-flight intents not updated since before
func (r *IntentRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]entities.TransactionIntent, error) {
	var intents []entities.TransactionIntent
	query := `
		SELECT ` + intentColumns + ` FROM transaction_intents
		WHERE status IN ($1, $2) AND updated_at < $3
		ORDER BY updated_at
		LIMIT $4
	`

	err := r.db.SelectContext(ctx, &intents, query,
		entities.StatusSubmitting,
		entities.StatusAwaitingConfirmation,
		before,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale intents: %w", err)
	}

	return intents, nil
}
