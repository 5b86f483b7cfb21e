package redisx

import "time"

const (
	// Lock stok per produk: lock:stock:{product_id} -> token pemegang lock
	KeyStockLock = "lock:stock:%s"

	// Stok produk (STOCK_BACKEND=redis): stock:{product_id} -> qty
	KeyStock = "stock:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "delivery_status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
