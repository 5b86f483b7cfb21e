package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tiered-orders/internal/pricing"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// sortColumns maps accepted sort fields to SQL columns. Anything else is rejected.
var sortColumns = map[string]string{
	"created_at":  "o.created_at",
	"createdAt":   "o.created_at",
	"total_cents": "o.total_cents",
	"totalPrice":  "o.total_cents",
	"status":      "o.status",
	"id":          "o.id",
}

type ListQuery struct {
	Page      int // 0-based
	Size      int
	SortField string
	SortDir   string
	Keyword   string // substring of buyer email

	column string
	desc   bool
}

// Normalize fills defaults and resolves the sort column.
func (q ListQuery) Normalize() (ListQuery, error) {
	if q.Page < 0 {
		return q, invalid("page must not be negative")
	}
	if q.Size <= 0 {
		q.Size = defaultPageSize
	}
	if q.Size > maxPageSize {
		q.Size = maxPageSize
	}
	if q.SortField == "" {
		q.SortField = "created_at"
	}
	col, ok := sortColumns[q.SortField]
	if !ok {
		return q, invalid("unsupported sort field %q", q.SortField)
	}
	q.column = col
	q.desc = !strings.EqualFold(q.SortDir, "asc")
	if q.desc {
		q.SortDir = "desc"
	} else {
		q.SortDir = "asc"
	}
	q.Keyword = strings.TrimSpace(q.Keyword)
	return q, nil
}

// OrderBy is the resolved ORDER BY clause, always with id as tiebreaker.
func (q ListQuery) OrderBy() string {
	dir := "ASC"
	if q.desc {
		dir = "DESC"
	}
	if q.column == "o.id" {
		return fmt.Sprintf("o.id %s", dir)
	}
	return fmt.Sprintf("%s %s, o.id %s", q.column, dir, dir)
}

type Page[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	Size       int `json:"size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// AdminRow is what the store returns for the admin listing.
type AdminRow struct {
	Order      Order
	BuyerName  string
	BuyerPhone string
	BuyerTier  pricing.Tier
}

type ItemView struct {
	ProductName    string `json:"product_name"`
	ProductImage   string `json:"product_image,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents,omitempty"`
	SubtotalCents  int64  `json:"subtotal_cents"`
}

type OrderView struct {
	OrderID        string     `json:"order_id"`
	Status         Status     `json:"status"`
	DeliveryStatus string     `json:"delivery_status"`
	CreatedAt      time.Time  `json:"created_at"`
	TotalCents     int64      `json:"total_cents"`
	Items          []ItemView `json:"items"`
}

type AdminOrderView struct {
	ID               string          `json:"id"`
	BuyerEmail       string          `json:"buyer_email"`
	BuyerName        string          `json:"buyer_name"`
	Phone            string          `json:"phone"`
	Status           Status          `json:"status"`
	DeliveryStatus   string          `json:"delivery_status"`
	TotalCents       int64           `json:"total_cents"`
	CreatedAt        time.Time       `json:"created_at"`
	DeliveryFeeCents int64           `json:"delivery_fee_cents"`
	DiscountRate     decimal.Decimal `json:"discount_rate"`
	Items            []ItemView      `json:"items"`
}

func toOrderView(o Order) OrderView {
	v := OrderView{
		OrderID:        o.ID,
		Status:         o.Status,
		DeliveryStatus: string(o.Delivery.Status),
		CreatedAt:      o.CreatedAt,
		TotalCents:     o.TotalCents,
		Items:          make([]ItemView, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		v.Items = append(v.Items, ItemView{
			ProductName:   it.ProductName,
			ProductImage:  it.ProductImage,
			Quantity:      it.Quantity,
			SubtotalCents: it.SubtotalCents,
		})
	}
	return v
}

// fee dan diskon dihitung dari tier buyer saat ini, bukan saat order dibuat
func toAdminView(r AdminRow) AdminOrderView {
	v := AdminOrderView{
		ID:               r.Order.ID,
		BuyerEmail:       r.Order.BuyerEmail,
		BuyerName:        r.BuyerName,
		Phone:            r.BuyerPhone,
		Status:           r.Order.Status,
		DeliveryStatus:   string(r.Order.Delivery.Status),
		TotalCents:       r.Order.TotalCents,
		CreatedAt:        r.Order.CreatedAt,
		DeliveryFeeCents: pricing.DeliveryFee(r.BuyerTier),
		DiscountRate:     pricing.DiscountRate(r.BuyerTier),
		Items:            make([]ItemView, 0, len(r.Order.Items)),
	}
	for _, it := range r.Order.Items {
		v.Items = append(v.Items, ItemView{
			ProductName:    it.ProductName,
			ProductImage:   it.ProductImage,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			SubtotalCents:  it.SubtotalCents,
		})
	}
	return v
}

// FindOrdersByBuyer returns the buyer's orders newest first. A known buyer
// with no orders is ErrOrderNotFound.
func (s *Service) FindOrdersByBuyer(ctx context.Context, email string) ([]OrderView, error) {
	if strings.TrimSpace(email) == "" {
		return nil, invalid("buyer_email is required")
	}
	buyer, err := s.store.FindBuyerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListOrdersByBuyer(ctx, buyer.ID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: buyer %s has no orders", ErrOrderNotFound, email)
	}
	out := make([]OrderView, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderView(o))
	}
	return out, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *Service) ListOrders(ctx context.Context, q ListQuery) (Page[AdminOrderView], error) {
	q, err := q.Normalize()
	if err != nil {
		return Page[AdminOrderView]{}, err
	}
	rows, total, err := s.store.ListOrders(ctx, q)
	if err != nil {
		return Page[AdminOrderView]{}, err
	}
	p := Page[AdminOrderView]{
		Items:      make([]AdminOrderView, 0, len(rows)),
		Page:       q.Page,
		Size:       q.Size,
		Total:      total,
		TotalPages: (total + q.Size - 1) / q.Size,
	}
	for _, r := range rows {
		p.Items = append(p.Items, toAdminView(r))
	}
	return p, nil
}

// UpdateDeliveryStatus is the admin override. It does not touch stock or order status.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, orderID string, status DeliveryStatus) (Order, error) {
	if !status.Valid() {
		return Order{}, invalid("unknown delivery status %q", status)
	}
	var order Order
	err := s.store.InTx(ctx, func(tx TxStore) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.UpdateDeliveryStatus(ctx, o.Delivery.ID, status); err != nil {
			return err
		}
		o.Delivery.Status = status
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("delivery status updated", zap.String("order_id", orderID), zap.String("delivery_status", string(status)))
	s.publish(ctx, TopicDeliveryUpdated, EventDeliveryUpdated, orderID, DeliveryUpdatedPayload{
		OrderID:        orderID,
		Status:         string(order.Status),
		DeliveryStatus: string(status),
	})
	return order, nil
}

// DeleteOrder removes the order with its line items and delivery. Stock is
// not restored; cancel first if that is wanted.
func (s *Service) DeleteOrder(ctx context.Context, orderID string) error {
	err := s.store.InTx(ctx, func(tx TxStore) error {
		if _, err := tx.LockOrder(ctx, orderID); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, orderID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("order deleted", zap.String("order_id", orderID))
	s.publish(ctx, TopicOrderDeleted, EventOrderDeleted, orderID, OrderDeletedPayload{OrderID: orderID})
	return nil
}
