package conversation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Telegram stops redelivering an update well within a day.
const defaultUpdateTTL = 24 * time.Hour

// UpdateClaimer records inbound update ids so a redelivered update runs once.
type UpdateClaimer interface {
	// ClaimUpdate returns false when the update was already claimed.
	ClaimUpdate(ctx context.Context, businessID string, updateID int64) (bool, error)
}

// RedisUpdateLog claims update ids with SET NX and lets them expire.
type RedisUpdateLog struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisUpdateLog(rdb *redis.Client, ttl time.Duration) *RedisUpdateLog {
	if rdb == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultUpdateTTL
	}
	return &RedisUpdateLog{redis: rdb, ttl: ttl}
}

func (l *RedisUpdateLog) ClaimUpdate(ctx context.Context, businessID string, updateID int64) (bool, error) {
	key := "telegram:update:" + businessID + ":" + strconv.FormatInt(updateID, 10)
	ok, err := l.redis.SetNX(ctx, key, 1, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("conversation: claim update: %w", err)
	}
	return ok, nil
}
