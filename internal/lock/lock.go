// Package lock defines a named, leased mutual-exclusion lock.
//
// A Locker serializes work on a key across goroutines and, for the Redis
// implementation, across processes. Every acquisition carries a lease: if the
// holder never releases, the lock frees itself when the lease ends.
package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrTimeout is returned by Acquire when the wait window elapses.
	ErrTimeout = errors.New("lock: wait timeout")
	// ErrLeaseExpired is returned by Release when the handle no longer owns the key.
	ErrLeaseExpired = errors.New("lock: lease expired before release")
)

// Handle identifies one successful acquisition.
type Handle struct {
	Key        string
	Token      string
	AcquiredAt time.Time
	Lease      time.Duration
}

// Deadline is when the lease runs out if not released.
func (h *Handle) Deadline() time.Time { return h.AcquiredAt.Add(h.Lease) }

type Locker interface {
	Acquire(ctx context.Context, key string, wait, lease time.Duration) (*Handle, error)
	Release(ctx context.Context, h *Handle) error
}

const (
	minPoll = 2 * time.Millisecond
	maxPoll = 50 * time.Millisecond
)

// Backoff returns the next poll interval, capped at maxPoll and at the time left.
func Backoff(prev time.Duration, left time.Duration) time.Duration {
	next := prev * 2
	if next < minPoll {
		next = minPoll
	}
	if next > maxPoll {
		next = maxPoll
	}
	if left > 0 && next > left {
		next = left
	}
	return next
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
