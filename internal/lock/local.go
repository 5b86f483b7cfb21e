package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type entry struct {
	token   string
	expires time.Time
}

// Local is an in-process Locker with the same lease semantics as the Redis one.
type Local struct {
	mu    sync.Mutex
	held  map[string]entry
	clock func() time.Time
}

func NewLocal() *Local {
	return &Local{held: make(map[string]entry), clock: time.Now}
}

func (l *Local) tryAcquire(key, token string, lease time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return false
	}
	l.held[key] = entry{token: token, expires: now.Add(lease)}
	return true
}

func (l *Local) Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, error) {
	token := uuid.NewString()
	deadline := l.clock().Add(wait)
	var poll time.Duration
	for {
		if l.tryAcquire(key, token, lease) {
			return &Handle{Key: key, Token: token, AcquiredAt: l.clock(), Lease: lease}, nil
		}
		left := deadline.Sub(l.clock())
		if left <= 0 {
			return nil, ErrTimeout
		}
		poll = Backoff(poll, left)
		if err := Sleep(ctx, poll); err != nil {
			return nil, err
		}
	}
}

func (l *Local) Release(_ context.Context, h *Handle) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[h.Key]
	if !ok || e.token != h.Token {
		return ErrLeaseExpired
	}
	delete(l.held, h.Key)
	if l.clock().After(e.expires) {
		return ErrLeaseExpired
	}
	return nil
}
