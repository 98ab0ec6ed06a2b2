package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/payment"
	"github.com/imrishuroy/pos-orderflow/internal/validation"
)

// RegisterPaymentRoutes registers the gateway return URL and the manual
// override used for payments stuck awaiting confirmation.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	a := newAPI(cfg)

	r.GET("/payments/vnpay/return", func(c *gin.Context) {
		cb, err := payment.ParseCallback(c.Request.URL.Query())
		if err != nil {
			writeError(c, err)
			return
		}
		res, err := cfg.Reconciler.Reconcile(c.Request.Context(), cb)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, res)
		case errors.Is(err, orders.ErrGatewayAmbiguous):
			c.JSON(http.StatusAccepted, gin.H{"result": res, "notice": payment.PendingNotice})
		case errors.Is(err, orders.ErrReconciliationConflict):
			// the recorded outcome stands; report both
			c.JSON(http.StatusConflict, gin.H{"error": "reconciliation_conflict", "msg": err.Error(), "result": res})
		default:
			writeError(c, err)
		}
	})

	r.POST("/payments/:txnRef/override", func(c *gin.Context) {
		var req validation.OverrideRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		res, err := cfg.Reconciler.Override(c.Request.Context(), c.Param("txnRef"), orders.Verdict(req.Verdict), req.ActorID, req.Note)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})
}
