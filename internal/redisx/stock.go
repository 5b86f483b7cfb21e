package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-tiered-orders/internal/inventory"
)

// StockStore keeps product stock counts in Redis. Mutations are only safe
// while the product's stock lock is held.
type StockStore struct {
	client *redis.Client
}

func NewStockStore(client *redis.Client) *StockStore {
	return &StockStore{client: client}
}

func (s *StockStore) FindStock(ctx context.Context, productID string) (int, error) {
	n, err := s.client.Get(ctx, fmt.Sprintf(KeyStock, productID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, inventory.ErrProductNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: get stock %s: %w", inventory.ErrPersistence, productID, err)
	}
	return n, nil
}

func (s *StockStore) SetStock(ctx context.Context, productID string, qty int) error {
	if err := s.client.Set(ctx, fmt.Sprintf(KeyStock, productID), qty, 0).Err(); err != nil {
		return fmt.Errorf("%w: set stock %s: %w", inventory.ErrPersistence, productID, err)
	}
	return nil
}

// SeedStock writes qty only when Redis has no count for the product yet, so a
// restart never overwrites live stock with the catalog's copy.
func (s *StockStore) SeedStock(ctx context.Context, productID string, qty int) (bool, error) {
	ok, err := s.client.SetNX(ctx, fmt.Sprintf(KeyStock, productID), qty, 0).Result()
	if err != nil {
		return false, fmt.Errorf("%w: seed stock %s: %w", inventory.ErrPersistence, productID, err)
	}
	return ok, nil
}
