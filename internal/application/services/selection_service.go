package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
)

// ErrSelectionLocked is returned when switching tokens while an intent is in flight
var ErrSelectionLocked = errors.New("token selection locked while an intent is in flight")

// SelectionService keeps the token each wallet is working with
type SelectionService struct {
	store    repositories.SelectionRepository
	tokens   *TokenService
	registry *sequencer.Registry
	logger   *zap.Logger
}

func NewSelectionService(
	store repositories.SelectionRepository,
	tokens *TokenService,
	registry *sequencer.Registry,
	logger *zap.Logger,
) *SelectionService {
	return &SelectionService{
		store:    store,
		tokens:   tokens,
		registry: registry,
		logger:   logger,
	}
}

// SelectionResponse is the API response for selection queries
type SelectionResponse struct {
	Data *entities.Token `json:"data"`
}

// Get returns the selected token, nil when none is selected
func (s *SelectionService) Get(ctx context.Context, wallet string) (*entities.Token, error) {
	if !common.IsHexAddress(wallet) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, wallet)
	}
	token, err := s.store.Get(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to get selection: %w", err)
	}
	return token, nil
}

// Select makes tokenAddress the wallet's selected token. Reselecting the
// current token is always allowed.
func (s *SelectionService) Select(ctx context.Context, wallet, tokenAddress string) (*entities.Token, error) {
	current, err := s.Get(ctx, wallet)
	if err != nil {
		return nil, err
	}

	token, err := s.tokens.Resolve(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}

	if entities.SameToken(current, token) {
		return current, nil
	}

	if inflight := s.registry.InFlight(wallet); len(inflight) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSelectionLocked, inflight[0].IntentID)
	}

	if err := s.store.Set(ctx, wallet, token); err != nil {
		return nil, fmt.Errorf("failed to set selection: %w", err)
	}

	s.logger.Debug("Token selected",
		zap.String("wallet", wallet),
		zap.String("token", token.Address),
		zap.String("symbol", token.Symbol),
	)
	return token, nil
}

// Clear removes the selection
func (s *SelectionService) Clear(ctx context.Context, wallet string) error {
	if !common.IsHexAddress(wallet) {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, wallet)
	}
	if inflight := s.registry.InFlight(wallet); len(inflight) > 0 {
		return fmt.Errorf("%w: %s", ErrSelectionLocked, inflight[0].IntentID)
	}
	if err := s.store.Clear(ctx, wallet); err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	return nil
}
