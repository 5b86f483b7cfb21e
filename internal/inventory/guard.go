// Package inventory serializes stock mutations per product behind a leased lock.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-tiered-orders/internal/lock"
	"github.com/ariefcatur/go-tiered-orders/internal/metrics"
)

var (
	ErrOutOfStock      = errors.New("out of stock")
	ErrLockTimeout     = errors.New("stock lock wait timeout")
	ErrProductNotFound = errors.New("product not found")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrPersistence marks an I/O failure of the backing store or lock service.
	ErrPersistence     = errors.New("persistence failure")
)

const lockKeyFormat = "lock:stock:%s"

// ShortageError carries the numbers behind an ErrOutOfStock.
type ShortageError struct {
	ProductID string
	Requested int
	Available int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("out of stock: product %s requested %d available %d", e.ProductID, e.Requested, e.Available)
}

func (e *ShortageError) Is(target error) bool { return target == ErrOutOfStock }

// StockStore is the catalog's raw stock primitive. FindStock returns
// ErrProductNotFound for unknown products.
type StockStore interface {
	FindStock(ctx context.Context, productID string) (int, error)
	SetStock(ctx context.Context, productID string, qty int) error
}

type GuardConfig struct {
	Wait  time.Duration
	Lease time.Duration
}

// Guard re-reads and writes a product's stock only while holding that
// product's lock, so no two mutations of one product interleave.
type Guard struct {
	store   StockStore
	locker  lock.Locker
	cfg     GuardConfig
	logger  *zap.Logger
	metrics *metrics.Registry
	tracer  trace.Tracer
}

func NewGuard(store StockStore, locker lock.Locker, cfg GuardConfig, logger *zap.Logger, m *metrics.Registry) *Guard {
	if cfg.Wait <= 0 {
		cfg.Wait = 3 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewRegistry()
	}
	return &Guard{
		store:   store,
		locker:  locker,
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		tracer:  otel.Tracer("inventory"),
	}
}

// Reserve decrements stock by qty, or fails with ErrOutOfStock leaving it untouched.
func (g *Guard) Reserve(ctx context.Context, productID string, qty int) error {
	err := g.withLock(ctx, "stock.reserve", productID, qty, func(ctx context.Context) error {
		available, err := g.store.FindStock(ctx, productID)
		if err != nil {
			return err
		}
		if available < qty {
			return &ShortageError{ProductID: productID, Requested: qty, Available: available}
		}
		return g.store.SetStock(ctx, productID, available-qty)
	})
	g.metrics.StockReservations.WithLabelValues(resultLabel(err)).Inc()
	return err
}

// Restore adds qty back. No upper bound is checked here; callers restore
// only what they reserved.
func (g *Guard) Restore(ctx context.Context, productID string, qty int) error {
	err := g.withLock(ctx, "stock.restore", productID, qty, func(ctx context.Context) error {
		available, err := g.store.FindStock(ctx, productID)
		if err != nil {
			return err
		}
		return g.store.SetStock(ctx, productID, available+qty)
	})
	g.metrics.StockRestores.WithLabelValues(resultLabel(err)).Inc()
	return err
}

func (g *Guard) withLock(ctx context.Context, op, productID string, qty int, fn func(context.Context) error) (err error) {
	ctx, span := g.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("product.id", productID),
		attribute.Int("stock.quantity", qty),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if qty <= 0 {
		return ErrInvalidQuantity
	}

	start := time.Now()
	h, err := g.locker.Acquire(ctx, fmt.Sprintf(lockKeyFormat, productID), g.cfg.Wait, g.cfg.Lease)
	g.metrics.LockWaitSec.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			g.logger.Warn("stock lock wait timeout",
				zap.String("op", op),
				zap.String("product_id", productID),
				zap.Duration("wait", g.cfg.Wait),
			)
			return fmt.Errorf("%w: product %s", ErrLockTimeout, productID)
		}
		return fmt.Errorf("acquire stock lock %s: %w", productID, err)
	}

	defer func() {
		// release tetap jalan walau ctx request sudah cancel
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if rerr := g.locker.Release(relCtx, h); rerr != nil {
			if errors.Is(rerr, lock.ErrLeaseExpired) {
				g.metrics.LeaseOverruns.Inc()
				g.logger.Warn("stock lock lease expired before release",
					zap.String("op", op),
					zap.String("product_id", productID),
					zap.Duration("lease", h.Lease),
					zap.Duration("held", time.Since(h.AcquiredAt)),
				)
				return
			}
			g.logger.Error("stock lock release failed", zap.String("product_id", productID), zap.Error(rerr))
		}
	}()

	return fn(ctx)
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrOutOfStock):
		return metrics.ResultOutOfStock
	case errors.Is(err, ErrLockTimeout):
		return metrics.ResultLockTimeout
	default:
		return metrics.ResultError
	}
}
