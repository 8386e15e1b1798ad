package repositories

import (
	"context"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

// SelectionRepository stores the token each wallet currently has selected
type SelectionRepository interface {
	// Get returns the selected token, nil when the wallet has none
	Get(ctx context.Context, wallet string) (*entities.Token, error)

	// Set replaces the selected token
	Set(ctx context.Context, wallet string, token *entities.Token) error

	// Clear removes the selection
	Clear(ctx context.Context, wallet string) error
}

// Notifier delivers lifecycle feedback to users
type Notifier interface {
	Notify(ctx context.Context, n entities.Notification) error
}
