package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}

func runConsumer(t *testing.T, c *Consumer, h Handler, want int) []kafka.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	r := c.r.(*fakeReader)
	deadline := time.Now().Add(5 * time.Second)
	for len(r.commits()) < want && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}
	return r.commits()
}

func TestConsumer_FailedMessageBlocksLaterCommitsOfItsPartition(t *testing.T) {
	// keys beda, partisi sama: dulu bisa jatuh ke worker berbeda
	r := &fakeReader{pending: []kafka.Message{
		{Topic: "order.placed", Partition: 0, Offset: 5, Key: []byte("order-a")},
		{Topic: "order.placed", Partition: 0, Offset: 6, Key: []byte("order-b")},
		{Topic: "order.placed", Partition: 0, Offset: 7, Key: []byte("order-c")},
		{Topic: "order.placed", Partition: 0, Offset: 8, Key: []byte("order-d")},
	}}
	c := newConsumer(r, 4, nil)
	c.retryBase = time.Millisecond

	var mu sync.Mutex
	attempts := map[int64]int{}
	var handled []int64
	h := func(ctx context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[m.Offset]++
		if m.Offset == 5 && attempts[m.Offset] <= 3 {
			return errors.New("redis down")
		}
		handled = append(handled, m.Offset)
		return nil
	}

	commits := runConsumer(t, c, h, 4)

	if len(commits) != 4 {
		t.Fatalf("expected 4 commits, got %d", len(commits))
	}
	for i, m := range commits {
		if m.Offset != int64(5+i) {
			t.Fatalf("commit %d: expected offset %d, got %d (commits out of order)", i, 5+i, m.Offset)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts[5] != 4 {
		t.Errorf("expected offset 5 retried until success, got %d attempts", attempts[5])
	}
	if handled[0] != 5 {
		t.Errorf("later offsets handled before the failing one: %v", handled)
	}
	if !r.closed {
		t.Error("reader not closed on shutdown")
	}
}

func TestConsumer_ShutdownWhileRetryingCommitsNothing(t *testing.T) {
	r := &fakeReader{pending: []kafka.Message{
		{Topic: "order.cancelled", Partition: 2, Offset: 10},
		{Topic: "order.cancelled", Partition: 2, Offset: 11},
	}}
	c := newConsumer(r, 2, nil)
	c.retryBase = time.Millisecond

	h := func(ctx context.Context, m kafka.Message) error {
		if m.Offset == 10 {
			return errors.New("always failing")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := r.commits(); len(got) != 0 {
		t.Errorf("offset committed past an unprocessed message: %+v", got)
	}
}
