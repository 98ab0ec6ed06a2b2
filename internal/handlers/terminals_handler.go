package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/pos-orderflow/internal/cart"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/session"
	"github.com/imrishuroy/pos-orderflow/internal/validation"
)

func (a *api) session(c *gin.Context) *session.Session {
	return a.cfg.Sessions.Session(c.Param("terminal"))
}

func orderID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(c, orders.Invalid("id", "must be a positive integer"))
		return 0, false
	}
	return id, true
}

// cartOf resolves the :id cart of the :terminal session.
func (a *api) cartOf(c *gin.Context) (*cart.Cart, bool) {
	id, ok := orderID(c)
	if !ok {
		return nil, false
	}
	ct, err := a.session(c).Cart(id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return ct, true
}

// RegisterTerminalRoutes registers the cashier routes: draft orders held by a
// terminal and their carts.
func RegisterTerminalRoutes(r *gin.Engine, cfg HandlerConfig) {
	a := newAPI(cfg)
	g := r.Group("/terminals/:terminal")

	g.POST("/orders", func(c *gin.Context) {
		o, err := a.session(c).CreateOrder(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, viewOf(o))
	})

	g.GET("/orders", func(c *gin.Context) {
		s := a.session(c)
		s.Refresh(c.Request.Context())
		list := s.Orders()
		views := make([]orderView, 0, len(list))
		for _, o := range list {
			views = append(views, viewOf(o))
		}
		body := gin.H{"orders": views, "selectedId": nil}
		if id, ok := s.Active(); ok {
			body["selectedId"] = id
		}
		c.JSON(http.StatusOK, body)
	})

	g.PUT("/orders/:id/select", func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		if err := a.session(c).SelectOrder(id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"selectedId": id})
	})

	g.POST("/orders/:id/lines", func(c *gin.Context) {
		ct, ok := a.cartOf(c)
		if !ok {
			return
		}
		var req validation.AddItemRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		a.respondCart(c, ct, ct.AddItem(c.Request.Context(), req.Item()))
	})

	g.PUT("/orders/:id/lines", func(c *gin.Context) {
		ct, ok := a.cartOf(c)
		if !ok {
			return
		}
		var req validation.SetQuantityRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		a.respondCart(c, ct, ct.SetLineQuantity(c.Request.Context(), req.ProductDetailID, *req.Quantity))
	})

	g.PUT("/orders/:id/voucher", func(c *gin.Context) {
		ct, ok := a.cartOf(c)
		if !ok {
			return
		}
		var req validation.VoucherRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		a.respondCart(c, ct, ct.ApplyVoucher(c.Request.Context(), req.Voucher()))
	})

	g.DELETE("/orders/:id/voucher", func(c *gin.Context) {
		ct, ok := a.cartOf(c)
		if !ok {
			return
		}
		a.respondCart(c, ct, ct.RemoveVoucher(c.Request.Context()))
	})

	g.PUT("/orders/:id/customer", func(c *gin.Context) {
		ct, ok := a.cartOf(c)
		if !ok {
			return
		}
		var req validation.CustomerRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		a.respondCart(c, ct, ct.AttachCustomer(c.Request.Context(), req.Ref()))
	})

	g.DELETE("/orders/:id/customer", func(c *gin.Context) {
		ct, ok := a.cartOf(c)
		if !ok {
			return
		}
		a.respondCart(c, ct, ct.AttachCustomer(c.Request.Context(), nil))
	})

	g.POST("/orders/:id/checkout", func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		o, err := a.session(c).Checkout(c.Request.Context(), id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewOf(o))
	})

	g.DELETE("/orders/:id", func(c *gin.Context) {
		id, ok := orderID(c)
		if !ok {
			return
		}
		var req validation.CancelRequest
		if err := validation.BindAndValidate(c, &req, a.validate); err != nil {
			return
		}
		res, err := a.session(c).RemoveOrder(c.Request.Context(), id, req.Request())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, terminationBody(res))
	})

	g.GET("/customers", a.browseCustomers)
}

func (a *api) respondCart(c *gin.Context, ct *cart.Cart, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(ct.Snapshot()))
}
