package repositories

import (
	"context"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

// TokenRepository defines the interface for known token storage
type TokenRepository interface {
	// GetByAddress retrieves a token by its address, nil when unknown
	GetByAddress(ctx context.Context, address string) (*entities.Token, error)

	// GetAll retrieves all tokens ordered by symbol
	GetAll(ctx context.Context) ([]entities.Token, error)

	// Upsert creates or updates a token
	Upsert(ctx context.Context, token *entities.Token) error
}
