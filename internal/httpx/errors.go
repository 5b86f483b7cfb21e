package httpx

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ariefcatur/go-tiered-orders/internal/orders"
)

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{orders.ErrInvalidRequest, http.StatusBadRequest, "INVALID_REQUEST"},
	{orders.ErrBuyerNotFound, http.StatusNotFound, "BUYER_NOT_FOUND"},
	{orders.ErrOrderNotFound, http.StatusNotFound, "ORDER_NOT_FOUND"},
	{orders.ErrProductNotFound, http.StatusNotFound, "PRODUCT_NOT_FOUND"},
	{orders.ErrOutOfStock, http.StatusConflict, "OUT_OF_STOCK"},
	{orders.ErrDeliveryAlreadyStarted, http.StatusConflict, "DELIVERY_ALREADY_STARTED"},
	{orders.ErrInvalidTransition, http.StatusConflict, "INVALID_TRANSITION"},
	{orders.ErrDuplicateOrder, http.StatusConflict, "DUPLICATE_ORDER"},
	{orders.ErrLockTimeout, http.StatusServiceUnavailable, "LOCK_TIMEOUT"},
	{orders.ErrRestoreIncomplete, http.StatusInternalServerError, "RESTORE_INCOMPLETE"},
	{orders.ErrPersistence, http.StatusInternalServerError, "PERSISTENCE_FAILURE"},
}

// retryAfterSeconds is sent with LOCK_TIMEOUT so clients retry the whole call.
const retryAfterSeconds = 1

func statusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL"
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status >= 500 {
		logger.Error("request failed", zap.String("code", code), zap.Error(err))
		if code == "INTERNAL" || code == "PERSISTENCE_FAILURE" {
			msg = "internal error" // detail driver jangan bocor ke client
		}
	}
	if code == "LOCK_TIMEOUT" {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJSON(w, status, errorBody{Code: code, Error: msg})
}
