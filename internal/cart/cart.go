// Package cart owns the mutable lines of one draft order. Every mutation is
// staged on a copy, persisted through the order backend and only then made
// visible, so readers never observe a half-applied change.
package cart

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/discount"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/retry"
)

// Persister stores draft snapshots. orders.Service implements it.
type Persister interface {
	UpdateLineQuantity(ctx context.Context, order orders.DraftOrder, productDetailID int64) error
	ApplyVoucher(ctx context.Context, order orders.DraftOrder) error
	AttachCustomer(ctx context.Context, order orders.DraftOrder) error
}

// Checkouter locks an order for payment.
type Checkouter interface {
	Checkout(ctx context.Context, id int64) (orders.DraftOrder, error)
}

// Item is a product detail picked by the cashier.
type Item struct {
	ProductDetailID int64
	SKU             string
	ProductName     string
	Quantity        int64
	Price           int64
	Promotion       *discount.Promotion
}

type Option func(*Cart)

func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Cart) { c.policy = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Cart) { c.log = l }
}

type Cart struct {
	// writeMu serializes mutations end to end, persistence included.
	writeMu sync.Mutex

	mu    sync.RWMutex
	order orders.DraftOrder

	persister Persister
	policy    retry.Policy
	log       *zap.Logger
	nowFunc   func() time.Time
}

// New wraps order. The order is cloned and its aggregates recomputed.
func New(order orders.DraftOrder, persister Persister, opts ...Option) *Cart {
	o := order.Clone()
	RecomputeAggregates(&o)
	c := &Cart{
		order:     o,
		persister: persister,
		policy:    retry.DefaultPolicy,
		log:       zap.NewNop(),
		nowFunc:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a deep copy of the current order.
func (c *Cart) Snapshot() orders.DraftOrder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Clone()
}

func (c *Cart) ID() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.ID
}

func (c *Cart) Status() orders.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Status
}

// SetStatus records a status decided elsewhere (checkout, reconciliation).
// It waits for any in-flight mutation.
func (c *Cart) SetStatus(st orders.Status) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.mu.Lock()
	c.order.Status = st
	c.mu.Unlock()
}

// SetLineQuantity sets the quantity of an existing line. Zero removes the
// line; removing a line that is not there is a no-op.
func (c *Cart) SetLineQuantity(ctx context.Context, productDetailID, quantity int64) error {
	if productDetailID <= 0 {
		return orders.Invalid("productDetailId", "must be positive")
	}
	if quantity < 0 {
		return orders.Invalid("quantity", "must not be negative")
	}
	return c.mutate(ctx, "update line", func(o *orders.DraftOrder) (bool, error) {
		idx := lineIndex(o, productDetailID)
		if quantity == 0 {
			if idx < 0 {
				return false, nil
			}
			o.Lines = append(o.Lines[:idx], o.Lines[idx+1:]...)
			return true, nil
		}
		if idx < 0 {
			return false, orders.Invalid("productDetailId", "line not in cart, add the item first")
		}
		if o.Lines[idx].Quantity == quantity {
			return false, nil
		}
		o.Lines[idx].Quantity = quantity
		return true, nil
	}, func(ctx context.Context, o orders.DraftOrder) error {
		return c.persister.UpdateLineQuantity(ctx, o, productDetailID)
	})
}

// AddItem appends a line, or adds to the quantity of the line with the same
// product detail.
func (c *Cart) AddItem(ctx context.Context, it Item) error {
	switch {
	case it.ProductDetailID <= 0:
		return orders.Invalid("productDetailId", "must be positive")
	case it.Quantity <= 0:
		return orders.Invalid("quantity", "must be positive")
	case it.Price < 0:
		return orders.Invalid("price", "must not be negative")
	}
	return c.mutate(ctx, "add item", func(o *orders.DraftOrder) (bool, error) {
		if idx := lineIndex(o, it.ProductDetailID); idx >= 0 {
			o.Lines[idx].Quantity += it.Quantity
			return true, nil
		}
		var promo *discount.Promotion
		if it.Promotion != nil {
			p := *it.Promotion
			promo = &p
		}
		o.Lines = append(o.Lines, orders.OrderLine{
			ProductDetailID: it.ProductDetailID,
			SKU:             it.SKU,
			ProductName:     it.ProductName,
			Quantity:        it.Quantity,
			Price:           it.Price,
			Promotion:       promo,
		})
		return true, nil
	}, func(ctx context.Context, o orders.DraftOrder) error {
		return c.persister.UpdateLineQuantity(ctx, o, it.ProductDetailID)
	})
}

// ApplyVoucher attaches v to the order. A nil voucher removes the current
// one. The voucher must be eligible against the current subtotal.
func (c *Cart) ApplyVoucher(ctx context.Context, v *discount.Voucher) error {
	return c.mutate(ctx, "apply voucher", func(o *orders.DraftOrder) (bool, error) {
		if v == nil {
			if o.Voucher == nil {
				return false, nil
			}
			o.Voucher = nil
			return true, nil
		}
		if err := discount.Eligible(o.Subtotal-o.ProductDiscount, *v); err != nil {
			return false, orders.Invalid("voucher", err.Error())
		}
		cp := *v
		o.Voucher = &cp
		return true, nil
	}, c.persister.ApplyVoucher)
}

func (c *Cart) RemoveVoucher(ctx context.Context) error {
	return c.ApplyVoucher(ctx, nil)
}

// AttachCustomer attributes the order to a customer. nil means guest.
func (c *Cart) AttachCustomer(ctx context.Context, ref *orders.CustomerRef) error {
	if ref != nil && ref.ID == "" {
		return orders.Invalid("customer.id", "required")
	}
	return c.mutate(ctx, "attach customer", func(o *orders.DraftOrder) (bool, error) {
		if ref == nil {
			if o.Customer == nil {
				return false, nil
			}
			o.Customer = nil
			return true, nil
		}
		cp := *ref
		o.Customer = &cp
		return true, nil
	}, c.persister.AttachCustomer)
}

// Checkout hands the order to the backend for payment. On success the cart
// holds the backend's locked snapshot.
func (c *Cart) Checkout(ctx context.Context, backend Checkouter) (orders.DraftOrder, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.Snapshot()
	if !cur.Status.Editable() {
		return orders.DraftOrder{}, orders.ErrOrderLocked
	}
	if len(cur.Lines) == 0 {
		return orders.DraftOrder{}, orders.Invalid("lines", "order has no lines")
	}

	var locked orders.DraftOrder
	err := c.call(ctx, "checkout", func() error {
		var err error
		locked, err = backend.Checkout(ctx, cur.ID)
		return err
	})
	if err != nil {
		return orders.DraftOrder{}, err
	}
	RecomputeAggregates(&locked)

	c.mu.Lock()
	c.order = locked.Clone()
	c.mu.Unlock()
	c.log.Info("order checked out", zap.Int64("order_id", cur.ID), zap.Int("attempt", locked.PaymentAttempt),
		zap.Int64("total_amount", locked.TotalAmount))
	return locked, nil
}

// mutate stages apply on a copy, recomputes, persists and swaps. Nothing is
// visible to readers until the backend accepted the snapshot.
func (c *Cart) mutate(ctx context.Context, op string, apply func(*orders.DraftOrder) (bool, error),
	persist func(context.Context, orders.DraftOrder) error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next := c.Snapshot()
	if !next.Status.Editable() {
		return orders.ErrOrderLocked
	}
	changed, err := apply(&next)
	if err != nil || !changed {
		return err
	}
	RecomputeAggregates(&next)
	next.UpdatedAt = c.nowFunc().UTC()

	if err := c.call(ctx, op, func() error { return persist(ctx, next) }); err != nil {
		return err
	}

	c.mu.Lock()
	c.order = next
	c.mu.Unlock()
	c.log.Debug("cart updated", zap.String("op", op), zap.Int64("order_id", next.ID),
		zap.Int64("total_amount", next.TotalAmount))
	return nil
}

// call runs a backend call under the retry policy. Business errors are
// returned as is, anything else as ErrBackendUnavailable.
func (c *Cart) call(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(ctx, c.policy, func() error {
		err := fn()
		if err != nil && orders.IsBusiness(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err == nil || orders.IsBusiness(err) {
		return err
	}
	c.log.Warn("backend call failed", zap.String("op", op), zap.Error(err))
	return orders.Unavailable(op, err)
}

func lineIndex(o *orders.DraftOrder, productDetailID int64) int {
	for i := range o.Lines {
		if o.Lines[i].ProductDetailID == productDetailID {
			return i
		}
	}
	return -1
}
