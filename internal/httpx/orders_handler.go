package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ariefcatur/go-tiered-orders/internal/orders"
	"github.com/ariefcatur/go-tiered-orders/internal/pricing"
	"github.com/ariefcatur/go-tiered-orders/internal/redisx"
)

// OrderService is the call contract exposed by *orders.Service.
type OrderService interface {
	CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (orders.CreateOrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (orders.Order, error)
	GetOrderSummary(ctx context.Context, subtotalCents int64, buyerEmail string) (orders.Summary, error)
	FindOrdersByBuyer(ctx context.Context, email string) ([]orders.OrderView, error)
	GetOrder(ctx context.Context, orderID string) (orders.Order, error)
	ListOrders(ctx context.Context, q orders.ListQuery) (orders.Page[orders.AdminOrderView], error)
	UpdateDeliveryStatus(ctx context.Context, orderID string, status orders.DeliveryStatus) (orders.Order, error)
	DeleteOrder(ctx context.Context, orderID string) error
}

type StatusCache interface {
	Get(ctx context.Context, orderID string) (redisx.OrderStatus, bool, error)
	Set(ctx context.Context, st redisx.OrderStatus) error
}

type ProductLister interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type OrdersHandler struct {
	Service  OrderService
	Cache    StatusCache   // optional
	Products ProductLister // optional
	Logger   *zap.Logger

	// request status yang miss cache barengan cukup 1x ke DB
	group singleflight.Group
}

func (h *OrdersHandler) Register(r chi.Router) {
	if h.Logger == nil {
		h.Logger = zap.NewNop()
	}
	r.Post("/orders", h.createOrder)
	r.Get("/orders/summary", h.orderSummary)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/cancel", h.cancelOrder)
	r.Get("/buyers/{email}/orders", h.buyerOrders)
	if h.Products != nil {
		r.Get("/products", h.listProducts)
	}

	r.Route("/admin/orders", func(r chi.Router) {
		r.Get("/", h.adminList)
		r.Patch("/{id}/delivery", h.adminUpdateDelivery)
		r.Delete("/{id}", h.adminDelete)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Code: "INVALID_REQUEST", Error: msg})
}

type CreateOrderResp struct {
	OrderID        string         `json:"order_id"`
	Status         orders.Status  `json:"status"`
	DeliveryStatus string         `json:"delivery_status"`
	TotalCents     int64          `json:"total_cents"`
	Idempotent     bool           `json:"idempotent"`
	Quote          *pricing.Quote `json:"quote,omitempty"`
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orders.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	if req.ExternalID == "" {
		req.ExternalID = r.Header.Get("Idempotency-Key")
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	res, err := h.Service.CreateOrder(ctx, req)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	resp := CreateOrderResp{
		OrderID:        res.Order.ID,
		Status:         res.Order.Status,
		DeliveryStatus: string(res.Order.Delivery.Status),
		TotalCents:     res.Order.TotalCents,
		Idempotent:     res.Idempotent,
	}
	code := http.StatusOK
	if !res.Idempotent {
		q := res.Quote
		resp.Quote = &q
		code = http.StatusCreated
	}
	writeJSON(w, code, resp)
}

func (h *OrdersHandler) orderSummary(w http.ResponseWriter, r *http.Request) {
	subtotal, err := strconv.ParseInt(r.URL.Query().Get("subtotal"), 10, 64)
	if err != nil {
		badRequest(w, "subtotal must be an integer amount in cents")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sum, err := h.Service.GetOrderSummary(ctx, subtotal, r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"buyer_email": sum.Buyer.Email,
		"quote":       sum.Quote,
	})
}

func (h *OrdersHandler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Service.CancelOrder(ctx, chi.URLParam(r, "id"))
	if err != nil && !(errors.Is(err, orders.ErrRestoreIncomplete) && o.ID != "") {
		writeError(w, h.Logger, err)
		return
	}
	body := map[string]any{
		"order_id":        o.ID,
		"status":          o.Status,
		"delivery_status": o.Delivery.Status,
	}
	if err != nil {
		// order sudah CANCELLED, tapi sebagian stok gagal dikembalikan
		h.Logger.Error("cancel committed with unrestored stock", zap.String("order_id", o.ID), zap.Error(err))
		body["warning"] = "RESTORE_INCOMPLETE"
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	if h.Cache != nil {
		st, ok, err := h.Cache.Get(ctx, orderID)
		if err != nil {
			h.Logger.Warn("status cache read", zap.String("order_id", orderID), zap.Error(err))
		}
		if ok {
			writeJSON(w, http.StatusOK, st)
			return
		}
	}

	// 2) fallback DB, digabung per order id
	v, err, _ := h.group.Do(orderID, func() (any, error) {
		o, err := h.Service.GetOrder(ctx, orderID)
		if err != nil {
			return nil, err
		}
		st := redisx.OrderStatus{
			OrderID:        o.ID,
			Status:         string(o.Status),
			DeliveryStatus: string(o.Delivery.Status),
			UpdatedAt:      o.UpdatedAt,
		}
		if h.Cache != nil {
			if err := h.Cache.Set(ctx, st); err != nil {
				h.Logger.Warn("status cache write", zap.String("order_id", orderID), zap.Error(err))
			}
		}
		return st, nil
	})
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) buyerOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	views, err := h.Service.FindOrdersByBuyer(ctx, chi.URLParam(r, "email"))
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.ListProducts(ctx)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func (h *OrdersHandler) adminList(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 0)
	if err != nil {
		badRequest(w, "page must be an integer")
		return
	}
	size, err := queryInt(r, "size", 0)
	if err != nil {
		badRequest(w, "size must be an integer")
		return
	}
	q := r.URL.Query()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Service.ListOrders(ctx, orders.ListQuery{
		Page:      page,
		Size:      size,
		SortField: q.Get("sortField"),
		SortDir:   q.Get("sortDir"),
		Keyword:   q.Get("keyword"),
	})
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type updateDeliveryReq struct {
	Status orders.DeliveryStatus `json:"status"`
}

func (h *OrdersHandler) adminUpdateDelivery(w http.ResponseWriter, r *http.Request) {
	var req updateDeliveryReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.UpdateDeliveryStatus(ctx, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, h.Logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":        o.ID,
		"status":          o.Status,
		"delivery_status": o.Delivery.Status,
	})
}

func (h *OrdersHandler) adminDelete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.DeleteOrder(ctx, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.Logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
