package discount

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// percentOf returns round-half-up(base*percent/100) in whole currency units.
func percentOf(base, percent int64) int64 {
	return decimal.NewFromInt(base).
		Mul(decimal.NewFromInt(percent)).
		Div(hundred).
		Round(0).
		IntPart()
}

// Mul multiplies two non-negative amounts, saturating at math.MaxInt64
// instead of wrapping.
func Mul(a, b int64) int64 {
	if a <= 0 || b <= 0 {
		return 0
	}
	if a > math.MaxInt64/b {
		return math.MaxInt64
	}
	return a * b
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LineDiscount returns the absolute discount for a line of quantity units at
// unitPrice. The result is always within [0, unitPrice*quantity]. Missing,
// inactive or malformed promotions give no discount.
func LineDiscount(unitPrice, quantity int64, p *Promotion) int64 {
	if p == nil || !p.IsActive || unitPrice <= 0 || quantity <= 0 {
		return 0
	}
	rule, err := p.Rule()
	if err != nil {
		return 0
	}

	gross := Mul(unitPrice, quantity)
	var d int64
	switch r := rule.(type) {
	case Percentage:
		if r.Percent >= 100 {
			return gross
		}
		d = percentOf(gross, r.Percent)
	case FixedAmount:
		d = Mul(r.Amount, quantity)
	}
	return clamp(d, 0, gross)
}

// EffectiveUnitPrice is the per-unit price after the line discount, for
// display only.
func EffectiveUnitPrice(unitPrice, lineDiscount, quantity int64) int64 {
	if quantity <= 0 {
		return unitPrice
	}
	return unitPrice - lineDiscount/quantity
}

// Eligible reports whether v may be applied to an order whose subtotal after
// product discounts is subtotal.
func Eligible(subtotal int64, v Voucher) error {
	if !v.IsActive {
		return ErrVoucherInactive
	}
	if _, err := v.Rule(); err != nil {
		return err
	}
	if v.MinOrderValue > 0 && subtotal < v.MinOrderValue {
		return ErrBelowMinimum
	}
	return nil
}

// VoucherDiscount returns the order-level discount of v against subtotal
// (the order subtotal after product discounts). It never exceeds subtotal or
// v.MaxDiscount when set. Callers check Eligible first.
func VoucherDiscount(subtotal int64, v Voucher) int64 {
	if subtotal <= 0 {
		return 0
	}
	rule, err := v.Rule()
	if err != nil {
		return 0
	}

	var d int64
	switch r := rule.(type) {
	case Percentage:
		d = percentOf(subtotal, r.Percent)
	case FixedAmount:
		d = r.Amount
	}
	if v.MaxDiscount > 0 && d > v.MaxDiscount {
		d = v.MaxDiscount
	}
	return clamp(d, 0, subtotal)
}
