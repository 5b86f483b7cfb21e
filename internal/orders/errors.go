package orders

import (
	"errors"
	"fmt"

	"github.com/ariefcatur/go-tiered-orders/internal/inventory"
)

var (
	ErrBuyerNotFound          = errors.New("buyer not found")
	ErrOrderNotFound          = errors.New("order not found")
	ErrDeliveryAlreadyStarted = errors.New("delivery already started")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrInvalidTransition      = errors.New("invalid order status transition")
	ErrDuplicateOrder         = errors.New("order already exists")
)

// Re-exported so callers of this package need a single import for errors.Is.
var (
	ErrProductNotFound = inventory.ErrProductNotFound
	ErrOutOfStock      = inventory.ErrOutOfStock
	ErrLockTimeout     = inventory.ErrLockTimeout
	ErrPersistence     = inventory.ErrPersistence
)

// persistErr wraps a storage error so it matches ErrPersistence while
// keeping the driver error reachable.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
