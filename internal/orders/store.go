package orders

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-tiered-orders/internal/pricing"
)

// Store is the persistence boundary of the orchestrator. Reads outside a
// transaction go through Store; every write goes through InTx.
type Store interface {
	FindBuyerByEmail(ctx context.Context, email string) (Buyer, error)
	FindOrderByExternalID(ctx context.Context, externalID string) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]Order, error)
	ListOrders(ctx context.Context, q ListQuery) ([]AdminRow, int, error)

	// InTx runs fn in one transaction. fn returning an error rolls back;
	// a commit failure is returned as is.
	InTx(ctx context.Context, fn func(tx TxStore) error) error
}

type TxStore interface {
	CreateDelivery(ctx context.Context, d *Delivery) error
	CreateOrder(ctx context.Context, o *Order) error
	CreateLineItem(ctx context.Context, li *LineItem) error
	// SumPlacedTotals is the buyer's spend: sum of TotalCents over PLACED orders.
	SumPlacedTotals(ctx context.Context, buyerID string) (int64, error)
	UpdateBuyerTier(ctx context.Context, buyerID string, tier pricing.Tier) error

	// LockOrder loads the order with its delivery and items and holds a row
	// lock on it until the transaction ends.
	LockOrder(ctx context.Context, orderID string) (Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status Status) error
	UpdateDeliveryStatus(ctx context.Context, deliveryID string, status DeliveryStatus) error
	DeleteOrder(ctx context.Context, orderID string) error
}

// Catalog is the product lookup used to snapshot line items.
type Catalog interface {
	FindProduct(ctx context.Context, productID string) (Product, error)
}

// StockReserver is satisfied by *inventory.Guard.
type StockReserver interface {
	Reserve(ctx context.Context, productID string, qty int) error
	Restore(ctx context.Context, productID string, qty int) error
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}
