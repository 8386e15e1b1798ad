package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/position"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
	"github.com/bimakw/vault-gateway/internal/domain/sequencer"
	"github.com/bimakw/vault-gateway/internal/domain/units"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
)

// PositionService serves chain reads for a (wallet, token) pair through a
// read-through cache and derives the display position from them
type PositionService struct {
	reader           repositories.LendingReader
	tokens           *TokenService
	cache            cache.Cache
	ttl              time.Duration
	collateralSymbol string
	lendingContract  string
	logger           *zap.Logger
}

// NewPositionService creates a new position service. cache may be nil.
func NewPositionService(
	reader repositories.LendingReader,
	tokens *TokenService,
	cache cache.Cache,
	ttl time.Duration,
	collateralSymbol string,
	lendingContract string,
	logger *zap.Logger,
) *PositionService {
	if collateralSymbol == "" {
		collateralSymbol = position.DefaultCollateralSymbol
	}
	return &PositionService{
		reader:           reader,
		tokens:           tokens,
		cache:            cache,
		ttl:              ttl,
		collateralSymbol: collateralSymbol,
		lendingContract:  lendingContract,
		logger:           logger,
	}
}

// PositionResponse is the API response for position queries. Data is null
// when the wallet has no position in the token.
type PositionResponse struct {
	Data *entities.DerivedPosition `json:"data"`
}

// VaultSummary is the stake/unstake view of one token
type VaultSummary struct {
	Token         *entities.Token           `json:"token"`
	Wallet        string                    `json:"wallet"`
	Lending       string                    `json:"lending_contract"`
	Balance       string                    `json:"balance"`
	BalanceRaw    string                    `json:"balance_raw"`
	Staked        string                    `json:"staked"`
	StakedRaw     string                    `json:"staked_raw"`
	Pool          *entities.PoolShareState  `json:"pool,omitempty"`
	Allowance     string                    `json:"allowance_raw"`
	Position      *entities.DerivedPosition `json:"position"`
	Errors        map[string]string         `json:"errors,omitempty"`
	ReadTimestamp time.Time                 `json:"read_at"`
}

// VaultResponse is the API response for vault summary queries
type VaultResponse struct {
	Data *VaultSummary `json:"data"`
}

// Snapshot returns the chain reads for the pair. Cached parts are reused;
// when any part is missing the whole batch is read again.
func (s *PositionService) Snapshot(ctx context.Context, wallet string, token *entities.Token) (*entities.ChainSnapshot, error) {
	if snap, ok := s.cachedSnapshot(ctx, wallet, token); ok {
		return snap, nil
	}

	snap, err := s.reader.Snapshot(ctx, wallet, token)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain state: %w", err)
	}

	s.store(ctx, wallet, token, cache.PartPosition, snap.Position, snap.PositionErr)
	s.store(ctx, wallet, token, cache.PartPool, snap.Pool, snap.PoolErr)
	s.store(ctx, wallet, token, cache.PartAllowance, snap.Allowance, snap.AllowanceErr)
	s.store(ctx, wallet, token, cache.PartBalance, snap.Balance, snap.BalanceErr)

	return snap, nil
}

func (s *PositionService) cachedSnapshot(ctx context.Context, wallet string, token *entities.Token) (*entities.ChainSnapshot, bool) {
	if s.cache == nil {
		return nil, false
	}

	snap := &entities.ChainSnapshot{
		WalletAddress: wallet,
		TokenAddress:  token.Address,
		Position:      new(entities.RawPosition),
		Pool:          new(entities.PoolShareState),
		Allowance:     new(big.Int),
		Balance:       new(big.Int),
	}

	parts := []struct {
		name string
		dest interface{}
	}{
		{cache.PartPosition, snap.Position},
		{cache.PartPool, snap.Pool},
		{cache.PartAllowance, snap.Allowance},
		{cache.PartBalance, snap.Balance},
	}

	hit := true
	for _, p := range parts {
		key := cache.ReadKey(wallet, token.Address, p.name)
		if err := s.cache.Get(ctx, key, p.dest); err != nil {
			if !errors.Is(err, cache.ErrCacheMiss) {
				s.logger.Warn("Failed to read cache", zap.String("key", key), zap.Error(err))
			}
			readCacheTotal.WithLabelValues(p.name, "miss").Inc()
			hit = false
			continue
		}
		readCacheTotal.WithLabelValues(p.name, "hit").Inc()
	}

	return snap, hit
}

func (s *PositionService) store(ctx context.Context, wallet string, token *entities.Token, part string, value interface{}, readErr error) {
	if s.cache == nil || readErr != nil {
		return
	}
	key := cache.ReadKey(wallet, token.Address, part)
	if err := s.cache.SetWithTTL(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn("Failed to cache read", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached read of the pair
func (s *PositionService) Invalidate(ctx context.Context, wallet, token string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, cache.ReadPattern(wallet, token)); err != nil {
		s.logger.Warn("Failed to invalidate reads",
			zap.String("wallet", wallet),
			zap.String("token", token),
			zap.Error(err),
		)
	}
}

// InvalidatePart drops one cached read of the pair
func (s *PositionService) InvalidatePart(ctx context.Context, wallet, token, part string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.ReadKey(wallet, token, part)); err != nil {
		s.logger.Warn("Failed to invalidate read",
			zap.String("part", part),
			zap.Error(err),
		)
	}
}

// GetPosition derives the wallet's position in the token
func (s *PositionService) GetPosition(ctx context.Context, wallet, tokenAddress string) (*PositionResponse, error) {
	token, err := s.tokens.Resolve(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}

	snap, err := s.Snapshot(ctx, wallet, token)
	if err != nil {
		return nil, err
	}
	if snap.PositionErr != nil {
		return nil, fmt.Errorf("failed to read position: %w", snap.PositionErr)
	}

	return &PositionResponse{
		Data: position.DeriveWithCollateral(snap.Position, token, s.collateralSymbol),
	}, nil
}

// GetVault builds the vault summary. Parts that failed to read are reported
// in Errors; the call fails only when nothing could be read.
func (s *PositionService) GetVault(ctx context.Context, wallet, tokenAddress string) (*VaultResponse, error) {
	token, err := s.tokens.Resolve(ctx, tokenAddress)
	if err != nil {
		return nil, err
	}

	snap, err := s.Snapshot(ctx, wallet, token)
	if err != nil {
		return nil, err
	}

	summary := &VaultSummary{
		Token:         token,
		Wallet:        wallet,
		Lending:       s.lendingContract,
		Errors:        make(map[string]string),
		ReadTimestamp: time.Now().UTC(),
	}

	if snap.BalanceErr != nil {
		summary.Errors[cache.PartBalance] = snap.BalanceErr.Error()
	} else {
		summary.Balance = units.FormatFixed(snap.Balance, token.Decimals, 4)
		summary.BalanceRaw = snap.Balance.String()
	}

	if snap.PoolErr != nil {
		summary.Errors[cache.PartPool] = snap.PoolErr.Error()
	} else {
		staked := position.StakedAmount(snap.Pool)
		summary.Pool = snap.Pool
		summary.Staked = sequencer.StakedDisplay(staked, token.Decimals)
		summary.StakedRaw = staked.String()
	}

	if snap.AllowanceErr != nil {
		summary.Errors[cache.PartAllowance] = snap.AllowanceErr.Error()
	} else {
		summary.Allowance = snap.Allowance.String()
	}

	if snap.PositionErr != nil {
		summary.Errors[cache.PartPosition] = snap.PositionErr.Error()
	} else {
		summary.Position = position.DeriveWithCollateral(snap.Position, token, s.collateralSymbol)
	}

	if len(summary.Errors) == 4 {
		return nil, fmt.Errorf("failed to read vault state: %s", summary.Errors[cache.PartPosition])
	}
	if len(summary.Errors) == 0 {
		summary.Errors = nil
	}

	return &VaultResponse{Data: summary}, nil
}
