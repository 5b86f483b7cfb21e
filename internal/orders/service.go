package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-tiered-orders/internal/kafka"
	"github.com/ariefcatur/go-tiered-orders/internal/metrics"
	"github.com/ariefcatur/go-tiered-orders/internal/pricing"
)

// ErrRestoreIncomplete means an order was cancelled or rolled back but at
// least one line's stock could not be put back.
var ErrRestoreIncomplete = errors.New("stock restore incomplete")

type Deps struct {
	Store       Store
	Catalog     Catalog
	Stock       StockReserver
	Publisher   Publisher // optional
	Logger      *zap.Logger
	Metrics     *metrics.Registry
	ServiceName string
}

// Service orchestrates order creation and cancellation: pricing, per-line
// stock reservation, persistence in one transaction, and compensation.
type Service struct {
	store   Store
	catalog Catalog
	stock   StockReserver
	pub     Publisher
	logger  *zap.Logger
	metrics *metrics.Registry
	tracer  trace.Tracer
	name    string

	now   func() time.Time
	newID func() string
}

func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewRegistry()
	}
	if d.ServiceName == "" {
		d.ServiceName = "order-api"
	}
	return &Service{
		store:   d.Store,
		catalog: d.Catalog,
		stock:   d.Stock,
		pub:     d.Publisher,
		logger:  d.Logger,
		metrics: d.Metrics,
		tracer:  otel.Tracer("orders"),
		name:    d.ServiceName,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
}

func validateCreate(req CreateOrderRequest) error {
	if strings.TrimSpace(req.BuyerEmail) == "" {
		return invalid("buyer_email is required")
	}
	if req.CartSubtotalCents < 0 {
		return invalid("cart_subtotal_cents must not be negative")
	}
	if len(req.Lines) == 0 {
		return invalid("at least one line is required")
	}
	for i, l := range req.Lines {
		if l.ProductID == "" {
			return invalid("lines[%d]: product_id is required", i)
		}
		if l.Quantity <= 0 {
			return invalid("lines[%d]: quantity must be positive", i)
		}
	}
	if strings.TrimSpace(req.Address) == "" {
		return invalid("address is required")
	}
	return nil
}

// CreateOrder prices the cart at the buyer's current tier, reserves stock
// line by line and persists delivery, order, line items and the buyer's
// recomputed tier in one transaction. Any failure after the first
// successful reservation restores every reserved line before returning.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (res CreateOrderResult, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.create", trace.WithAttributes(
		attribute.String("buyer.email", req.BuyerEmail),
		attribute.Int("order.lines", len(req.Lines)),
	))
	defer func() {
		endSpan(span, err)
		if err != nil {
			s.metrics.OrderFailures.WithLabelValues("create", failureReason(err)).Inc()
		}
	}()

	if err := validateCreate(req); err != nil {
		return res, err
	}

	// idempotent: external_id yang sama -> balikin order lama
	if req.ExternalID != "" {
		existing, ferr := s.store.FindOrderByExternalID(ctx, req.ExternalID)
		if ferr == nil {
			return CreateOrderResult{Order: existing, Idempotent: true}, nil
		}
		if !errors.Is(ferr, ErrOrderNotFound) {
			return res, ferr
		}
	}

	buyer, err := s.store.FindBuyerByEmail(ctx, req.BuyerEmail)
	if err != nil {
		return res, err
	}
	quote := pricing.NewQuote(req.CartSubtotalCents, buyer.Tier)

	items := make([]LineItem, 0, len(req.Lines))
	for _, l := range req.Lines {
		p, err := s.catalog.FindProduct(ctx, l.ProductID)
		if err != nil {
			return res, err
		}
		items = append(items, LineItem{
			ProductID:      p.ID,
			ProductName:    p.Name,
			ProductImage:   p.Image,
			Quantity:       l.Quantity,
			UnitPriceCents: p.PriceCents,
			SubtotalCents:  int64(l.Quantity) * p.PriceCents,
		})
	}

	var reserved []LineItem
	defer func() {
		if err != nil && len(reserved) > 0 {
			if cerr := s.compensate(ctx, "create", reserved); cerr != nil {
				err = errors.Join(err, cerr)
			}
		}
	}()

	// satu lock produk per waktu, tidak pernah pegang dua lock sekaligus
	for _, it := range items {
		if err = s.stock.Reserve(ctx, it.ProductID, it.Quantity); err != nil {
			return res, fmt.Errorf("reserve %s: %w", it.ProductID, err)
		}
		reserved = append(reserved, it)
	}

	now := s.now()
	order := Order{
		ID:          s.newID(),
		ExternalID:  req.ExternalID,
		BuyerID:     buyer.ID,
		BuyerEmail:  buyer.Email,
		Recipient:   firstNonEmpty(req.Recipient, buyer.Name),
		Phone:       firstNonEmpty(req.Phone, buyer.Phone),
		Requirement: req.Requirement,
		Status:      StatusPlaced,
		TotalCents:  quote.TotalCents,
		CreatedAt:   now,
		UpdatedAt:   now,
		Delivery: Delivery{
			ID:      s.newID(),
			Address: req.Address,
			Status:  DeliveryReady,
		},
	}
	for i := range items {
		items[i].ID = s.newID()
		items[i].OrderID = order.ID
		items[i].LineNo = i + 1
	}

	var newTier pricing.Tier
	err = s.store.InTx(ctx, func(tx TxStore) error {
		if err := tx.CreateDelivery(ctx, &order.Delivery); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, &order); err != nil {
			return err
		}
		for i := range items {
			if err := tx.CreateLineItem(ctx, &items[i]); err != nil {
				return err
			}
		}
		spent, err := tx.SumPlacedTotals(ctx, buyer.ID)
		if err != nil {
			return err
		}
		newTier = pricing.TierForSpend(spent)
		return tx.UpdateBuyerTier(ctx, buyer.ID, newTier)
	})
	if err != nil {
		if errors.Is(err, ErrDuplicateOrder) && req.ExternalID != "" {
			// request kembar yang balapan: kembalikan stok, lalu pakai order pemenang
			cerr := s.compensate(ctx, "create", reserved)
			reserved = nil
			if existing, ferr := s.store.FindOrderByExternalID(ctx, req.ExternalID); ferr == nil && cerr == nil {
				return CreateOrderResult{Order: existing, Idempotent: true}, nil
			}
			return res, errors.Join(err, cerr)
		}
		return res, err
	}
	order.Items = items

	s.metrics.OrdersCreated.Inc()
	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.Info("order placed",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", buyer.ID),
		zap.String("tier", string(buyer.Tier)),
		zap.String("new_tier", string(newTier)),
		zap.Int64("total_cents", order.TotalCents),
		zap.Int("lines", len(items)),
	)
	s.publish(ctx, TopicOrderPlaced, EventOrderPlaced, order.ID, OrderPlacedPayload{
		OrderID:        order.ID,
		ExternalID:     order.ExternalID,
		BuyerID:        buyer.ID,
		Tier:           string(buyer.Tier),
		Items:          itemQtys(items),
		TotalCents:     order.TotalCents,
		DeliveryStatus: string(order.Delivery.Status),
	})
	return CreateOrderResult{Order: order, Quote: quote}, nil
}

// CancelOrder moves a PLACED order with a READY delivery to CANCELLED and
// then restores every line. Restore failures do not undo the cancellation;
// they are logged, counted and returned wrapped in ErrRestoreIncomplete.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (order Order, err error) {
	ctx, span := s.tracer.Start(ctx, "orders.cancel", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer func() {
		endSpan(span, err)
		if err != nil {
			s.metrics.OrderFailures.WithLabelValues("cancel", failureReason(err)).Inc()
		}
	}()

	err = s.store.InTx(ctx, func(tx TxStore) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Delivery.Status != DeliveryReady {
			return fmt.Errorf("%w: order %s delivery is %s", ErrDeliveryAlreadyStarted, orderID, o.Delivery.Status)
		}
		if !CanTransition(o.Status, StatusCancelled) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, StatusCancelled)
		}
		if err := tx.UpdateOrderStatus(ctx, orderID, StatusCancelled); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.UpdatedAt = s.now()
		order = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.metrics.OrdersCancelled.Inc()
	restoreErr := s.compensate(ctx, "cancel", order.Items)
	s.logger.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.Int("lines", len(order.Items)),
		zap.Bool("restore_failed", restoreErr != nil),
	)
	s.publish(ctx, TopicOrderCancelled, EventOrderCancelled, order.ID, OrderCancelledPayload{
		OrderID:        order.ID,
		Items:          itemQtys(order.Items),
		RestoreFailed:  restoreErr != nil,
		DeliveryStatus: string(order.Delivery.Status),
	})
	return order, restoreErr
}

// GetOrderSummary is a read-only preview of what CreateOrder would charge.
func (s *Service) GetOrderSummary(ctx context.Context, subtotalCents int64, buyerEmail string) (Summary, error) {
	if subtotalCents < 0 {
		return Summary{}, invalid("subtotal must not be negative")
	}
	if strings.TrimSpace(buyerEmail) == "" {
		return Summary{}, invalid("buyer_email is required")
	}
	buyer, err := s.store.FindBuyerByEmail(ctx, buyerEmail)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Buyer: buyer, Quote: pricing.NewQuote(subtotalCents, buyer.Tier)}, nil
}

// compensate restores lines in reverse order. It keeps going past
// failures so one bad product does not strand the others.
func (s *Service) compensate(ctx context.Context, op string, lines []LineItem) error {
	// restore tetap jalan walau request sudah di-cancel client
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(lines) - 1; i >= 0; i-- {
		it := lines[i]
		if err := s.stock.Restore(ctx, it.ProductID, it.Quantity); err != nil {
			s.metrics.CompensationFailed.Inc()
			s.logger.Error("CRITICAL: stock restore failed, manual correction needed",
				zap.String("op", op),
				zap.String("order_id", it.OrderID),
				zap.String("product_id", it.ProductID),
				zap.Int("quantity", it.Quantity),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("restore %s x%d: %w", it.ProductID, it.Quantity, err))
			continue
		}
		s.metrics.Compensations.Inc()
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRestoreIncomplete, errors.Join(errs...))
}

func (s *Service) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	if s.pub == nil {
		return
	}
	env := Envelope{
		EventID:       s.newID(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.name,
		CorrelationID: orderID,
		Payload:       kafkax.MustMarshal(payload),
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	s.pub.Publish(topic, PartitionKey(orderID), kafkax.MustMarshal(env),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrBuyerNotFound):
		return "buyer_not_found"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrOutOfStock):
		return "out_of_stock"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	case errors.Is(err, ErrDeliveryAlreadyStarted):
		return "delivery_started"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrRestoreIncomplete):
		return "restore_incomplete"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	default:
		return "other"
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
