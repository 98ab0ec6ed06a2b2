package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// statusFor maps the error taxonomy to an HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, orders.ErrValidation):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, orders.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, orders.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, orders.ErrOrderLocked):
		return http.StatusConflict, "order_locked"
	case errors.Is(err, orders.ErrReconciliationConflict):
		return http.StatusConflict, "reconciliation_conflict"
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, orders.ErrNoActiveOrder):
		return http.StatusConflict, "no_active_order"
	case errors.Is(err, orders.ErrOrderNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, orders.ErrGatewayAmbiguous):
		return http.StatusAccepted, "gateway_ambiguous"
	case errors.Is(err, orders.ErrBackendUnavailable):
		return http.StatusServiceUnavailable, "backend_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	body := gin.H{"error": code, "msg": err.Error()}
	var ve *orders.ValidationError
	if errors.As(err, &ve) {
		body["field"] = ve.Field
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, body)
}
