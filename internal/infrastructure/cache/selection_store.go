package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
)

var (
	_ repositories.SelectionRepository = (*RedisSelectionStore)(nil)
	_ repositories.SelectionRepository = (*MemorySelectionStore)(nil)
)

// RedisSelectionStore keeps each wallet's selected token in Redis without expiry
type RedisSelectionStore struct {
	client *redis.Client
}

// NewRedisSelectionStore creates a selection store on an open Redis cache
func NewRedisSelectionStore(c *RedisCache) *RedisSelectionStore {
	return &RedisSelectionStore{client: c.Client()}
}

func (s *RedisSelectionStore) Get(ctx context.Context, wallet string) (*entities.Token, error) {
	data, err := s.client.Get(ctx, SelectionKey(wallet)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get selection: %w", err)
	}

	var token entities.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selection: %w", err)
	}
	return &token, nil
}

func (s *RedisSelectionStore) Set(ctx context.Context, wallet string, token *entities.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal selection: %w", err)
	}
	if err := s.client.Set(ctx, SelectionKey(wallet), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set selection: %w", err)
	}
	return nil
}

func (s *RedisSelectionStore) Clear(ctx context.Context, wallet string) error {
	if err := s.client.Del(ctx, SelectionKey(wallet)).Err(); err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	return nil
}

// MemorySelectionStore is the in-process fallback used without Redis
type MemorySelectionStore struct {
	mu       sync.RWMutex
	selected map[string]entities.Token
}

func NewMemorySelectionStore() *MemorySelectionStore {
	return &MemorySelectionStore{selected: make(map[string]entities.Token)}
}

func (s *MemorySelectionStore) Get(_ context.Context, wallet string) (*entities.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.selected[strings.ToLower(wallet)]
	if !ok {
		return nil, nil
	}
	return &token, nil
}

func (s *MemorySelectionStore) Set(_ context.Context, wallet string, token *entities.Token) error {
	if token == nil {
		return fmt.Errorf("nil token")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected[strings.ToLower(wallet)] = *token
	return nil
}

func (s *MemorySelectionStore) Clear(_ context.Context, wallet string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selected, strings.ToLower(wallet))
	return nil
}
