package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/pos-orderflow/internal/cancellation"
	"github.com/imrishuroy/pos-orderflow/internal/validation"
)

func terminationBody(res cancellation.Result) gin.H {
	body := gin.H{
		"order":     viewOf(res.Order),
		"record":    res.Record,
		"restocked": res.Restocked,
	}
	if res.RestockErr != nil {
		body["restockError"] = res.RestockErr.Error()
	}
	return body
}

// RegisterOrdersRoutes registers back-office routes that act on an order
// regardless of which terminal opened it.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	a := newAPI(cfg)

	r.GET("/orders/:id", func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		o, err := cfg.Orders.Get(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(o))
	})

	r.POST("/orders/:id/cancel", func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		var req validation.CancelRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		res, err := cfg.Cancellation.Cancel(c.Request.Context(), id, req.Request())
		if err != nil {
			writeError(c, err)
			return
		}
		cfg.Sessions.Resolve(id, res.Status)
		c.JSON(http.StatusOK, terminationBody(res))
	})

	r.POST("/orders/:id/dispatch", func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		o, err := cfg.Orders.MarkDispatched(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(o))
	})

	r.POST("/orders/:id/delivered", func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		o, err := cfg.Orders.MarkDelivered(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(o))
	})

	r.POST("/orders/:id/failed-delivery", func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		var req validation.FailedDeliveryRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		res, err := cfg.Cancellation.FailDelivery(c.Request.Context(), id, req.Request())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, terminationBody(res))
	})
}
