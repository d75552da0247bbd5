package telephony

import (
	"context"
	"time"

	"leadbridge/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const dedupTTL = 10 * time.Minute

// RedisDeduper backs webhook duplicate suppression with redis SET NX.
type RedisDeduper struct {
	rdb *redis.Client
}

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb}
}

func (d *RedisDeduper) ClaimOnce(ctx context.Context, key string) (bool, error) {
	return utils.ClaimOnce(ctx, d.rdb, "webhook:"+key, dedupTTL)
}
