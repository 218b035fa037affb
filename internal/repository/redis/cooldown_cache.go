package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lostfound-api/internal/client"
	"lostfound-api/internal/util"
)

const cooldownKeyPrefix = "resend_cooldown:"

// CooldownCache is a TTL gate in front of repeated code issuance. It is
// a fast path only; the stored last_issued_at stays authoritative, so a
// cache flush merely lets the next request fall through to the store.
type CooldownCache struct {
	redis *client.RedisClient
}

func NewCooldownCache(redisClient *client.RedisClient) *CooldownCache {
	return &CooldownCache{
		redis: redisClient,
	}
}

func (c *CooldownCache) MarkIssued(ctx context.Context, mobile string, ttl time.Duration) error {
	key := cooldownKeyPrefix + mobile
	_, err := c.redis.SetNX(ctx, key, time.Now().UTC().Unix(), ttl)
	if err != nil {
		util.Warn("Failed to mark resend cooldown",
			zap.String("key_hash", util.KeyHash(mobile)),
			zap.Error(err))
		return fmt.Errorf("failed to mark resend cooldown: %w", err)
	}
	return nil
}

func (c *CooldownCache) InCooldown(ctx context.Context, mobile string) (bool, error) {
	key := cooldownKeyPrefix + mobile
	exists, err := c.redis.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to check resend cooldown: %w", err)
	}
	return exists, nil
}

func (c *CooldownCache) Clear(ctx context.Context, mobile string) error {
	key := cooldownKeyPrefix + mobile
	if err := c.redis.Del(ctx, key); err != nil {
		return fmt.Errorf("failed to clear resend cooldown: %w", err)
	}
	return nil
}
