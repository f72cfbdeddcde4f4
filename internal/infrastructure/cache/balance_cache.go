package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lending-engine/internal/domain/customer"

	"github.com/redis/go-redis/v9"
)

const balanceKeyPrefix = "balance:"

// RedisBalanceCache keeps computed customer balances in Redis for a short
// TTL. Loan admission and payment allocation invalidate after commit, so a
// stale entry survives at most the TTL.
type RedisBalanceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

var _ customer.BalanceCache = (*RedisBalanceCache)(nil)

func NewRedisBalanceCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisBalanceCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisBalanceCache{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "RedisBalanceCache"),
	}
}

func (c *RedisBalanceCache) GetBalance(ctx context.Context, externalID string) (*customer.Balance, error) {
	raw, err := c.client.Get(ctx, balanceKeyPrefix+externalID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("balance cache get: %w", err)
	}

	var balance customer.Balance
	if err := json.Unmarshal(raw, &balance); err != nil {
		// A corrupt entry is treated as a miss after dropping it.
		c.logger.WarnContext(ctx, "Dropping unreadable balance cache entry", "externalID", externalID, slog.Any("error", err))
		_ = c.client.Del(ctx, balanceKeyPrefix+externalID).Err()
		return nil, nil
	}
	return &balance, nil
}

func (c *RedisBalanceCache) SetBalance(ctx context.Context, balance *customer.Balance) error {
	raw, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("balance cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, balanceKeyPrefix+balance.ExternalID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("balance cache set: %w", err)
	}
	return nil
}

func (c *RedisBalanceCache) InvalidateBalance(ctx context.Context, externalID string) error {
	if err := c.client.Del(ctx, balanceKeyPrefix+externalID).Err(); err != nil {
		return fmt.Errorf("balance cache del: %w", err)
	}
	return nil
}
