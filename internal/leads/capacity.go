package leads

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"leadbridge/pkg/utils"
)

// Capacity bounds how many leads may be in flight at once.
type Capacity interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

const (
	activeLeadsKey = "leads:active"

	// capTTL bounds how long a crashed process can pin slots.
	capTTL = 2 * time.Hour
)

// RedisCapacity counts active leads in redis so the cap holds across
// replicas.
type RedisCapacity struct {
	rdb   *redis.Client
	limit int
}

func NewRedisCapacity(rdb *redis.Client, limit int) *RedisCapacity {
	return &RedisCapacity{rdb: rdb, limit: limit}
}

func (c *RedisCapacity) Acquire(ctx context.Context) (bool, error) {
	return utils.AcquireCap(ctx, c.rdb, activeLeadsKey, c.limit, capTTL)
}

func (c *RedisCapacity) Release(ctx context.Context) error {
	return utils.ReleaseCap(ctx, c.rdb, activeLeadsKey)
}

// UnboundedCapacity never refuses. For tests and local runs without redis.
type UnboundedCapacity struct{}

func (UnboundedCapacity) Acquire(context.Context) (bool, error) { return true, nil }
func (UnboundedCapacity) Release(context.Context) error         { return nil }
