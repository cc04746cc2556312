package filtering

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// NameAlertStore remembers which members were recently alerted on for their name,
// so a bad nickname is reported once per interval rather than on every message.
type NameAlertStore interface {
	Recent(ctx context.Context, userID string) (bool, error)
	Mark(ctx context.Context, userID string) error
}

const memoryCooldownSize = 10_000

// MemoryNameAlerts keeps name alert cooldowns in process.
type MemoryNameAlerts struct {
	cache *expirable.LRU[string, time.Time]
}

func NewMemoryNameAlerts(interval time.Duration) *MemoryNameAlerts {
	return &MemoryNameAlerts{cache: expirable.NewLRU[string, time.Time](memoryCooldownSize, nil, interval)}
}

func (m *MemoryNameAlerts) Recent(_ context.Context, userID string) (bool, error) {
	_, ok := m.cache.Get(userID)
	return ok, nil
}

func (m *MemoryNameAlerts) Mark(_ context.Context, userID string) error {
	m.cache.Add(userID, time.Now())
	return nil
}

// RedisNameAlerts keeps name alert cooldowns in redis so they survive restarts.
type RedisNameAlerts struct {
	client   redis.UniversalClient
	prefix   string
	interval time.Duration
}

func NewRedisNameAlerts(client redis.UniversalClient, interval time.Duration) *RedisNameAlerts {
	return &RedisNameAlerts{client: client, prefix: "filtering:name_alert:", interval: interval}
}

func (r *RedisNameAlerts) Recent(ctx context.Context, userID string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+userID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read name alert cooldown of %s: %w", userID, err)
	}
	return n > 0, nil
}

func (r *RedisNameAlerts) Mark(ctx context.Context, userID string) error {
	if err := r.client.Set(ctx, r.prefix+userID, time.Now().Unix(), r.interval).Err(); err != nil {
		return fmt.Errorf("failed to set name alert cooldown of %s: %w", userID, err)
	}
	return nil
}
