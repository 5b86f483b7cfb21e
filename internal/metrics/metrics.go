package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reservation outcomes used as the "result" label.
const (
	ResultOK          = "ok"
	ResultOutOfStock  = "out_of_stock"
	ResultLockTimeout = "lock_timeout"
	ResultError       = "error"
)

type Registry struct {
	reg *prometheus.Registry

	StockReservations *prometheus.CounterVec
	StockRestores     *prometheus.CounterVec
	LockWaitSec       prometheus.Histogram
	LeaseOverruns     prometheus.Counter

	OrdersCreated      prometheus.Counter
	OrdersCancelled    prometheus.Counter
	OrderFailures      *prometheus.CounterVec
	Compensations      prometheus.Counter
	CompensationFailed prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "stock_reservations_total"}, []string{"result"})
	restores := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "stock_restores_total"}, []string{"result"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_lock_wait_seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
	overruns := prometheus.NewCounter(prometheus.CounterOpts{Name: "stock_lease_overruns_total"})

	created := prometheus.NewCounter(prometheus.CounterOpts{Name: "orders_created_total"})
	cancelled := prometheus.NewCounter(prometheus.CounterOpts{Name: "orders_cancelled_total"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "order_failures_total"}, []string{"op", "reason"})
	compensations := prometheus.NewCounter(prometheus.CounterOpts{Name: "order_compensations_total"})
	compFailed := prometheus.NewCounter(prometheus.CounterOpts{Name: "order_compensation_failures_total"})

	r.MustRegister(reservations, restores, lockWait, overruns, created, cancelled, failures, compensations, compFailed)
	return &Registry{
		reg:                r,
		StockReservations:  reservations,
		StockRestores:      restores,
		LockWaitSec:        lockWait,
		LeaseOverruns:      overruns,
		OrdersCreated:      created,
		OrdersCancelled:    cancelled,
		OrderFailures:      failures,
		Compensations:      compensations,
		CompensationFailed: compFailed,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
