package discount

import (
	"errors"
	"fmt"
)

// Kind is the wire name of a discount calculation.
type Kind string

const (
	KindPercentage  Kind = "percentage"
	KindFixedAmount Kind = "fixed_amount"
)

var (
	ErrUnknownKind     = errors.New("unknown discount type")
	ErrNegativeValue   = errors.New("discount value must not be negative")
	ErrPercentRange    = errors.New("percentage must be between 0 and 100")
	ErrVoucherInactive = errors.New("voucher is not active")
	ErrBelowMinimum    = errors.New("order value is below the voucher minimum")
)

// Rule is the closed set of discount calculations. Only this package can
// add implementations, so every switch over Rule lives here.
type Rule interface {
	Kind() Kind
	isRule()
}

// Percentage takes Percent/100 of the base amount.
type Percentage struct {
	Percent int64
}

// FixedAmount takes a flat amount. For promotions it is per unit, for
// vouchers it is per order.
type FixedAmount struct {
	Amount int64
}

func (Percentage) Kind() Kind  { return KindPercentage }
func (FixedAmount) Kind() Kind { return KindFixedAmount }
func (Percentage) isRule()     {}
func (FixedAmount) isRule()    {}

// ParseRule converts the wire representation of a voucher into a Rule.
// Percentages must be within 0..100.
func ParseRule(kind Kind, value int64) (Rule, error) {
	return parseRule(kind, value, true)
}

// ParsePromotionRule is ParseRule without the percentage ceiling. A
// promotion above 100% is clamped to the line amount when applied.
func ParsePromotionRule(kind Kind, value int64) (Rule, error) {
	return parseRule(kind, value, false)
}

func parseRule(kind Kind, value int64, capPercent bool) (Rule, error) {
	if value < 0 {
		return nil, ErrNegativeValue
	}
	switch kind {
	case KindPercentage:
		if capPercent && value > 100 {
			return nil, ErrPercentRange
		}
		return Percentage{Percent: value}, nil
	case KindFixedAmount:
		return FixedAmount{Amount: value}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Promotion is the product-level discount snapshot carried on an order line.
type Promotion struct {
	DiscountType  Kind  `json:"discountType" dynamodbav:"discount_type"`
	DiscountValue int64 `json:"discountValue" dynamodbav:"discount_value"`
	IsActive      bool  `json:"isActive" dynamodbav:"is_active"`
}

// Rule returns the calculation described by the promotion.
func (p Promotion) Rule() (Rule, error) {
	return ParsePromotionRule(p.DiscountType, p.DiscountValue)
}

// Voucher is an order-level discount code.
type Voucher struct {
	Code          string `json:"code" dynamodbav:"code"`
	DiscountType  Kind   `json:"discountType" dynamodbav:"discount_type"`
	DiscountValue int64  `json:"discountValue" dynamodbav:"discount_value"`
	MaxDiscount   int64  `json:"maxDiscount,omitempty" dynamodbav:"max_discount,omitempty"`     // 0 means uncapped
	MinOrderValue int64  `json:"minOrderValue,omitempty" dynamodbav:"min_order_value,omitempty"` // 0 means no minimum
	IsActive      bool   `json:"isActive" dynamodbav:"is_active"`
}

// Rule returns the calculation described by the voucher.
func (v Voucher) Rule() (Rule, error) {
	return ParseRule(v.DiscountType, v.DiscountValue)
}
