package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type OrderStatus struct {
	OrderID        string    `json:"order_id"`
	Status         string    `json:"status"`
	DeliveryStatus string    `json:"delivery_status,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StatusCache is the read-through cache behind GET /orders/{id}/status.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client, ttl: TTLStatusCache}
}

// Get returns ok=false on a cache miss.
func (c *StatusCache) Get(ctx context.Context, orderID string) (OrderStatus, bool, error) {
	var st OrderStatus
	b, err := c.client.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return st, false, nil
	}
	if err != nil {
		return st, false, err
	}
	if err := json.Unmarshal(b, &st); err != nil {
		return st, false, fmt.Errorf("decode cached status: %w", err)
	}
	return st, true, nil
}

func (c *StatusCache) Set(ctx context.Context, st OrderStatus) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, fmt.Sprintf(KeyOrderStatus, st.OrderID), b, c.ttl).Err()
}

func (c *StatusCache) Delete(ctx context.Context, orderID string) error {
	return c.client.Del(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Err()
}
