package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
	"github.com/bimakw/vault-gateway/internal/infrastructure/cache"
)

var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrTokenNotFound  = errors.New("token not found")
)

// TokenService resolves tokens from the registry, falling back to on-chain
// ERC-20 metadata for addresses the registry does not know
type TokenService struct {
	tokenRepo repositories.TokenRepository
	fetcher   repositories.TokenMetadataFetcher
	cache     cache.Cache
	ttl       time.Duration
	logger    *zap.Logger
}

// NewTokenService creates a new token service. fetcher and cache may be nil.
func NewTokenService(
	tokenRepo repositories.TokenRepository,
	fetcher repositories.TokenMetadataFetcher,
	cache cache.Cache,
	ttl time.Duration,
	logger *zap.Logger,
) *TokenService {
	return &TokenService{
		tokenRepo: tokenRepo,
		fetcher:   fetcher,
		cache:     cache,
		ttl:       ttl,
		logger:    logger,
	}
}

// TokenListResponse is the API response for token list queries
type TokenListResponse struct {
	Data []entities.Token `json:"data"`
}

// TokenResponse is the API response for single token queries
type TokenResponse struct {
	Data *entities.Token `json:"data"`
}

// batchMetadataFetcher is implemented by fetchers that resolve many tokens
// concurrently
type batchMetadataFetcher interface {
	FetchMetadataBatch(ctx context.Context, tokenAddresses []string) (map[string]*entities.Token, error)
}

// Seed stores the known token list in the registry. Entries listed without
// a name take their name and decimals from the chain.
func (s *TokenService) Seed(ctx context.Context, tokens []entities.Token) error {
	s.complete(ctx, tokens)

	for i := range tokens {
		if err := s.tokenRepo.Upsert(ctx, &tokens[i]); err != nil {
			return fmt.Errorf("failed to seed token %s: %w", tokens[i].Symbol, err)
		}
	}

	s.logger.Info("Token registry seeded", zap.Int("tokens", len(tokens)))
	return nil
}

func (s *TokenService) complete(ctx context.Context, tokens []entities.Token) {
	batch, ok := s.fetcher.(batchMetadataFetcher)
	if !ok {
		return
	}

	var missing []string
	for _, t := range tokens {
		if t.Name == "" {
			missing = append(missing, t.Address)
		}
	}
	if len(missing) == 0 {
		return
	}

	fetched, err := batch.FetchMetadataBatch(ctx, missing)
	if err != nil {
		s.logger.Warn("Failed to complete token list from chain", zap.Error(err))
		return
	}

	for i := range tokens {
		meta, ok := fetched[tokens[i].Key()]
		if !ok || tokens[i].Name != "" {
			continue
		}
		tokens[i].Name = meta.Name
		tokens[i].Decimals = meta.Decimals
	}
}

// GetAllTokens returns every registered token ordered by symbol
func (s *TokenService) GetAllTokens(ctx context.Context) (*TokenListResponse, error) {
	tokens, err := s.tokenRepo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	if tokens == nil {
		tokens = []entities.Token{}
	}
	return &TokenListResponse{Data: tokens}, nil
}

// GetByAddress returns a single token
func (s *TokenService) GetByAddress(ctx context.Context, address string) (*TokenResponse, error) {
	token, err := s.Resolve(ctx, address)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{Data: token}, nil
}

// Resolve looks the address up in the cache, then the registry, then on
// chain. Tokens found on chain are added to the registry.
func (s *TokenService) Resolve(ctx context.Context, address string) (*entities.Token, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	address = strings.ToLower(address)
	cacheKey := cache.TokenKey(address)

	// Try cache first
	if s.cache != nil {
		var cached entities.Token
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	token, err := s.tokenRepo.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	if token == nil {
		if s.fetcher == nil {
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, address)
		}

		token, err = s.fetcher.FetchTokenMetadata(ctx, address)
		if err != nil {
			s.logger.Warn("Failed to resolve token metadata",
				zap.String("token", address),
				zap.Error(err),
			)
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, address)
		}

		if err := s.tokenRepo.Upsert(ctx, token); err != nil {
			s.logger.Warn("Failed to register resolved token", zap.Error(err))
		}
		s.logger.Info("Resolved token from chain",
			zap.String("token", token.Address),
			zap.String("symbol", token.Symbol),
			zap.Uint8("decimals", token.Decimals),
		)
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, token, s.ttl); err != nil {
			s.logger.Warn("Failed to cache token", zap.Error(err))
		}
	}

	return token, nil
}
