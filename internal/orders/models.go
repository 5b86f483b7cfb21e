package orders

import (
	"time"

	"github.com/ariefcatur/go-tiered-orders/internal/pricing"
)

type Buyer struct {
	ID    string       `json:"id"`
	Email string       `json:"email"`
	Name  string       `json:"name"`
	Phone string       `json:"phone"`
	Tier  pricing.Tier `json:"tier"`
}

// Product is the catalog view used for line item snapshots.
type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Image      string    `json:"image"`
	PriceCents int64     `json:"price_cents"`
	Stock      int       `json:"stock"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Delivery struct {
	ID      string         `json:"id"`
	Address string         `json:"address"`
	Status  DeliveryStatus `json:"status"`
}

type Order struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id,omitempty"`
	BuyerID     string     `json:"buyer_id"`
	BuyerEmail  string     `json:"buyer_email"`
	Recipient   string     `json:"recipient"`
	Phone       string     `json:"phone"`
	Requirement string     `json:"requirement,omitempty"`
	Status      Status     `json:"status"` // lihat status.go
	TotalCents  int64      `json:"total_cents"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Delivery    Delivery   `json:"delivery"`
	Items       []LineItem `json:"items"`
}

// LineItem menyimpan snapshot nama, gambar, dan harga produk saat order dibuat.
type LineItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"order_id"`
	LineNo         int    `json:"line_no"` // urutan baris di keranjang, mulai 1
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	ProductImage   string `json:"product_image,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type LineInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CreateOrderRequest struct {
	ExternalID        string      `json:"external_id,omitempty"`
	BuyerEmail        string      `json:"buyer_email"`
	CartSubtotalCents int64       `json:"cart_subtotal_cents"`
	Lines             []LineInput `json:"lines"`
	Address           string      `json:"address"`
	Recipient         string      `json:"recipient,omitempty"`
	Phone             string      `json:"phone,omitempty"`
	Requirement       string      `json:"requirement,omitempty"`
}

type CreateOrderResult struct {
	Order      Order
	Quote      pricing.Quote
	Idempotent bool
}

type Summary struct {
	Buyer Buyer
	Quote pricing.Quote
}
