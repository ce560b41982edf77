package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/slack-approval-bot/internal/infra"
)

// RedisCmdable — то, что нужно от клиента Redis (удобно подменять в тестах).
type RedisCmdable interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisClaims — распределенная блокировка решения (SetNX), общая для всех реплик бота.
type RedisClaims struct {
	rdb RedisCmdable
	ttl time.Duration
}

func NewRedisClaims(rdb RedisCmdable, ttl time.Duration) *RedisClaims {
	return &RedisClaims{rdb: rdb, ttl: ttl}
}

func (r *RedisClaims) Claim(ctx context.Context, messageKey, decidedBy string, at time.Time) (bool, error) {
	value := fmt.Sprintf("%s@%d", decidedBy, at.Unix())
	ok, err := r.rdb.SetNX(ctx, infra.DecisionClaimKey(messageKey), value, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim decision: %w", err)
	}
	return ok, nil
}

func (r *RedisClaims) Release(ctx context.Context, messageKey string) error {
	if err := r.rdb.Del(ctx, infra.DecisionClaimKey(messageKey)).Err(); err != nil {
		return fmt.Errorf("redis: release decision: %w", err)
	}
	return nil
}
