package handlers

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/pos-orderflow/internal/customers"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// pickers holds one customer browser per terminal.
type pickers struct {
	store *customers.Store
	mu    sync.Mutex
	byID  map[string]*customers.Browser
}

func newPickers(store *customers.Store) *pickers {
	return &pickers{store: store, byID: map[string]*customers.Browser{}}
}

func (p *pickers) get(terminal string) *customers.Browser {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.byID[terminal]
	if !ok {
		b = customers.NewBrowser(p.store, customers.DefaultPageSize)
		p.byID[terminal] = b
	}
	return b
}

// browseCustomers serves the terminal's customer picker: each call with
// more=true appends the next page, a new keyword starts over.
func (a *api) browseCustomers(c *gin.Context) {
	b := a.pickers.get(c.Param("terminal"))
	b.SetKeyword(c.Query("keyword"))
	if c.Query("more") == "true" || len(b.Items()) == 0 {
		if _, err := b.Next(c.Request.Context()); err != nil {
			writeError(c, orders.Unavailable("customer search", err))
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"items": b.Items(), "done": b.Done()})
}

// RegisterCustomerRoutes registers the stateless paged customer search.
func RegisterCustomerRoutes(r *gin.Engine, cfg HandlerConfig) {
	r.GET("/customers", func(c *gin.Context) {
		q := customers.Query{Keyword: c.Query("keyword"), Cursor: c.Query("cursor")}
		if s := c.Query("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				writeError(c, orders.Invalid("limit", "must be a positive integer"))
				return
			}
			q.PageSize = n
		}
		page, err := cfg.Customers.Search(c.Request.Context(), q)
		if err != nil {
			writeError(c, orders.Unavailable("customer search", err))
			return
		}
		c.JSON(http.StatusOK, page)
	})
}
