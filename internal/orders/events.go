package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced     = "OrderPlaced"
	EventOrderCancelled  = "OrderCancelled"
	EventDeliveryUpdated = "DeliveryUpdated"
	EventOrderDeleted    = "OrderDeleted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderPlacedPayload struct {
	OrderID        string    `json:"order_id"`
	ExternalID     string    `json:"external_id,omitempty"`
	BuyerID        string    `json:"buyer_id"`
	Tier           string    `json:"tier"`
	Items          []ItemQty `json:"items"`
	TotalCents     int64     `json:"total_cents"`
	DeliveryStatus string    `json:"delivery_status"`
}

type OrderCancelledPayload struct {
	OrderID        string    `json:"order_id"`
	Items          []ItemQty `json:"items"`
	RestoreFailed  bool      `json:"restore_failed,omitempty"`
	DeliveryStatus string    `json:"delivery_status"`
}

type DeliveryUpdatedPayload struct {
	OrderID        string `json:"order_id"`
	Status         string `json:"status"`
	DeliveryStatus string `json:"delivery_status"`
}

type OrderDeletedPayload struct {
	OrderID string `json:"order_id"`
}

func itemQtys(items []LineItem) []ItemQty {
	out := make([]ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	return out
}
