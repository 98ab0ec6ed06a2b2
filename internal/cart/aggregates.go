package cart

import (
	"github.com/imrishuroy/pos-orderflow/internal/discount"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// RecomputeAggregates refreshes every line's discount and total and the
// order totals. A voucher that is no longer eligible stays attached but
// discounts nothing.
func RecomputeAggregates(o *orders.DraftOrder) {
	var subtotal, productDiscount int64
	for i := range o.Lines {
		l := &o.Lines[i]
		gross := discount.Mul(l.Price, l.Quantity)
		l.Discount = discount.LineDiscount(l.Price, l.Quantity, l.Promotion)
		l.TotalAmount = gross - l.Discount
		subtotal += gross
		productDiscount += l.Discount
	}

	o.Subtotal = subtotal
	o.ProductDiscount = productDiscount
	o.VoucherDiscount = 0
	if o.Voucher != nil {
		base := subtotal - productDiscount
		if discount.Eligible(base, *o.Voucher) == nil {
			o.VoucherDiscount = discount.VoucherDiscount(base, *o.Voucher)
		}
	}
	o.TotalAmount = subtotal - productDiscount - o.VoucherDiscount
}
