package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     100,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// MarkOnce sets key if absent. Returns false when the key was already there.
func MarkOnce(ctx context.Context, rdb *redis.Client, key string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}

// Dedup remembers processed event ids per consumer scope.
type Dedup struct {
	client *redis.Client
	scope  string
	ttl    time.Duration
}

func NewDedup(client *redis.Client, scope string) *Dedup {
	return &Dedup{client: client, scope: scope, ttl: TTLDedup}
}

func (d *Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.client, fmt.Sprintf(KeyDedup, d.scope, eventID))
}

func (d *Dedup) Mark(ctx context.Context, eventID string) error {
	_, err := MarkOnce(ctx, d.client, fmt.Sprintf(KeyDedup, d.scope, eventID), d.ttl)
	return err
}
