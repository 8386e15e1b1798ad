package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/bimakw/vault-gateway/internal/domain/entities"
)

// ChannelPrefix prefixes the per-wallet pub/sub channel
const ChannelPrefix = "notifications:"

// Channel is the pub/sub channel carrying a wallet's notifications
func Channel(wallet string) string {
	return ChannelPrefix + strings.ToLower(wallet)
}

// RedisPublisher publishes notifications so API instances can forward them
// to connected WebSocket clients
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Send(ctx context.Context, n entities.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := p.client.Publish(ctx, Channel(n.Wallet), data).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Name() string {
	return "redis"
}
