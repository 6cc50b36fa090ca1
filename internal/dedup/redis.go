package dedup

import (
	"context"
	"time"

	"callflow-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dedup:event:"

// RedisWindow shares the dedup window across instances. Prefer this when more
// than one process receives the same provider webhooks.
type RedisWindow struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisWindow(rdb *redis.Client, ttl time.Duration) *RedisWindow {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisWindow{rdb: rdb, ttl: ttl}
}

func (w *RedisWindow) Observe(ctx context.Context, sig string) (bool, error) {
	return utils.MarkEventOnce(ctx, w.rdb, redisKeyPrefix+sig, w.ttl)
}

var _ Window = (*RedisWindow)(nil)
