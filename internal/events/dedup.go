package events

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// Deduper remembers idempotency keys that were already applied. It is a
// fast path only; the reservation ledger stays authoritative.
type Deduper interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type LRUDeduper struct {
	cache *lru.Cache[string, struct{}]
}

func NewLRUDeduper(size int) (*LRUDeduper, error) {
	c, err := lru.New[string, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &LRUDeduper{cache: c}, nil
}

func (d *LRUDeduper) Seen(_ context.Context, key string) (bool, error) {
	return d.cache.Contains(key), nil
}

func (d *LRUDeduper) Mark(_ context.Context, key string) error {
	d.cache.Add(key, struct{}{})
	return nil
}

// redisClient is the subset of redis.Cmdable the deduper needs.
type redisClient interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// RedisDeduper shares applied keys between catalog instances.
type RedisDeduper struct {
	rdb    redisClient
	prefix string
	ttl    time.Duration
}

func NewRedisDeduper(rdb redisClient, prefix string, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDeduper) Mark(ctx context.Context, key string) error {
	return d.rdb.SetNX(ctx, d.prefix+key, 1, d.ttl).Err()
}
