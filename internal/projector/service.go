// Package projector keeps the order status cache in step with order events.
package projector

import (
	"context"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-tiered-orders/internal/kafka"
	"github.com/ariefcatur/go-tiered-orders/internal/orders"
	"github.com/ariefcatur/go-tiered-orders/internal/redisx"
)

type StatusStore interface {
	Get(ctx context.Context, orderID string) (redisx.OrderStatus, bool, error)
	Set(ctx context.Context, st redisx.OrderStatus) error
	Delete(ctx context.Context, orderID string) error
}

type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

type Service struct {
	Cache  StatusStore
	Dedup  Deduper
	Logger *zap.Logger
}

// HandleMessage dipasang sebagai handler consumer.
func (s *Service) HandleMessage(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// pesan rusak tidak akan pernah sukses, jangan di-retry
		s.logger().Warn("drop undecodable event", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}

	// 2) dedup via Redis (pakai event_id)
	if env.EventID != "" {
		seen, err := s.Dedup.Seen(ctx, env.EventID)
		if err != nil {
			return fmt.Errorf("dedup lookup: %w", err)
		}
		if seen {
			return nil
		}
	}

	// 3) apply
	if err := s.apply(ctx, env); err != nil {
		return err
	}

	// 4) baru ditandai setelah sukses, supaya retry tetap diproses
	if env.EventID != "" {
		if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
			s.logger().Warn("dedup mark failed", zap.String("event_id", env.EventID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) apply(ctx context.Context, env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderPlaced:
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.put(ctx, env, redisx.OrderStatus{
			OrderID:        p.OrderID,
			Status:         string(orders.StatusPlaced),
			DeliveryStatus: p.DeliveryStatus,
		})

	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		if p.RestoreFailed {
			s.logger().Error("cancelled order has unrestored stock", zap.String("order_id", p.OrderID))
		}
		return s.put(ctx, env, redisx.OrderStatus{
			OrderID:        p.OrderID,
			Status:         string(orders.StatusCancelled),
			DeliveryStatus: p.DeliveryStatus,
		})

	case orders.EventDeliveryUpdated:
		p, err := kafkax.UnwrapPayload[orders.DeliveryUpdatedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		return s.put(ctx, env, redisx.OrderStatus{
			OrderID:        p.OrderID,
			Status:         p.Status,
			DeliveryStatus: p.DeliveryStatus,
		})

	case orders.EventOrderDeleted:
		p, err := kafkax.UnwrapPayload[orders.OrderDeletedPayload](env.Payload)
		if err != nil {
			return s.drop(env, err)
		}
		if err := s.Cache.Delete(ctx, p.OrderID); err != nil {
			return fmt.Errorf("evict status %s: %w", p.OrderID, err)
		}
		return nil

	default:
		return nil // ignore
	}
}

// put writes st unless the cache already holds something newer.
func (s *Service) put(ctx context.Context, env orders.Envelope, st redisx.OrderStatus) error {
	st.UpdatedAt = env.OccurredAt
	cur, ok, err := s.Cache.Get(ctx, st.OrderID)
	if err != nil {
		return fmt.Errorf("read status %s: %w", st.OrderID, err)
	}
	if ok && cur.UpdatedAt.After(st.UpdatedAt) {
		s.logger().Debug("skip stale event",
			zap.String("order_id", st.OrderID),
			zap.String("event_type", env.EventType),
			zap.Time("cached_at", cur.UpdatedAt),
			zap.Time("event_at", st.UpdatedAt),
		)
		return nil
	}
	if err := s.Cache.Set(ctx, st); err != nil {
		return fmt.Errorf("write status %s: %w", st.OrderID, err)
	}
	return nil
}

func (s *Service) drop(env orders.Envelope, err error) error {
	s.logger().Warn("drop event with bad payload",
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.Error(err),
	)
	return nil
}

func (s *Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
