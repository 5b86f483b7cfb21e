package redisx

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-tiered-orders/internal/inventory"
	"github.com/ariefcatur/go-tiered-orders/internal/lock"
)

// Hapus key hanya kalau token masih milik kita; lease yang sudah expire
// (atau diambil pemegang lain) tidak boleh ikut terhapus.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Locker implements lock.Locker with SET NX PX and a token-checked release.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

func (l *Locker) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*lock.Handle, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(wait)
	var poll time.Duration
	for {
		ok, err := l.client.SetNX(ctx, key, token, lease).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: acquire %s: %w", inventory.ErrPersistence, key, err)
		}
		if ok {
			return &lock.Handle{Key: key, Token: token, AcquiredAt: time.Now(), Lease: lease}, nil
		}
		left := time.Until(deadline)
		if left <= 0 {
			return nil, lock.ErrTimeout
		}
		poll = lock.Backoff(poll, left)
		if err := lock.Sleep(ctx, poll); err != nil {
			return nil, err
		}
	}
}

func (l *Locker) Release(ctx context.Context, h *lock.Handle) error {
	n, err := releaseScript.Run(ctx, l.client, []string{h.Key}, h.Token).Int()
	if err != nil {
		return fmt.Errorf("%w: release %s: %w", inventory.ErrPersistence, h.Key, err)
	}
	if n == 0 {
		return lock.ErrLeaseExpired
	}
	return nil
}
