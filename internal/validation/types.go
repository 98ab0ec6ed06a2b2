package validation

import (
	"github.com/imrishuroy/pos-orderflow/internal/cancellation"
	"github.com/imrishuroy/pos-orderflow/internal/cart"
	"github.com/imrishuroy/pos-orderflow/internal/discount"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// Promotion is the product promotion snapshot sent with an item.
type Promotion struct {
	DiscountType  string `json:"discountType" validate:"required,oneof=percentage fixed_amount"`
	DiscountValue int64  `json:"discountValue" validate:"min=0,max=1000000000000"`
	IsActive      bool   `json:"isActive"`
}

// AddItemRequest is the payload for POST /terminals/:terminal/orders/:id/lines
// The max bounds keep line and order totals well inside int64.
type AddItemRequest struct {
	ProductDetailID int64      `json:"productDetailId" validate:"required,gt=0"`
	SKU             string     `json:"sku" validate:"required"`
	ProductName     string     `json:"productName"`
	Quantity        int64      `json:"quantity" validate:"required,min=1,max=100000"`
	Price           int64      `json:"price" validate:"min=0,max=1000000000000"` // unit price before discount
	Promotion       *Promotion `json:"promotion,omitempty"`
}

func (r AddItemRequest) Item() cart.Item {
	it := cart.Item{
		ProductDetailID: r.ProductDetailID,
		SKU:             r.SKU,
		ProductName:     r.ProductName,
		Quantity:        r.Quantity,
		Price:           r.Price,
	}
	if r.Promotion != nil {
		it.Promotion = &discount.Promotion{
			DiscountType:  discount.Kind(r.Promotion.DiscountType),
			DiscountValue: r.Promotion.DiscountValue,
			IsActive:      r.Promotion.IsActive,
		}
	}
	return it
}

// SetQuantityRequest is the payload for PUT /terminals/:terminal/orders/:id/lines
// Quantity 0 removes the line.
type SetQuantityRequest struct {
	ProductDetailID int64  `json:"productDetailId" validate:"required,gt=0"`
	Quantity        *int64 `json:"quantity" validate:"required,min=0,max=100000"`
}

// VoucherRequest is the payload for PUT /terminals/:terminal/orders/:id/voucher
type VoucherRequest struct {
	Code          string `json:"code" validate:"required"`
	DiscountType  string `json:"discountType" validate:"required,oneof=percentage fixed_amount"`
	DiscountValue int64  `json:"discountValue" validate:"min=0,max=1000000000000"`
	MaxDiscount   int64  `json:"maxDiscount" validate:"min=0,max=1000000000000"`
	MinOrderValue int64  `json:"minOrderValue" validate:"min=0,max=1000000000000"`
	IsActive      bool   `json:"isActive"`
}

func (r VoucherRequest) Voucher() *discount.Voucher {
	return &discount.Voucher{
		Code:          r.Code,
		DiscountType:  discount.Kind(r.DiscountType),
		DiscountValue: r.DiscountValue,
		MaxDiscount:   r.MaxDiscount,
		MinOrderValue: r.MinOrderValue,
		IsActive:      r.IsActive,
	}
}

// CustomerRequest is the payload for PUT /terminals/:terminal/orders/:id/customer
type CustomerRequest struct {
	ID          string `json:"id" validate:"required"`
	FullName    string `json:"fullName" validate:"required"`
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

func (r CustomerRequest) Ref() *orders.CustomerRef {
	return &orders.CustomerRef{ID: r.ID, FullName: r.FullName, Email: r.Email, PhoneNumber: r.PhoneNumber}
}

// CancelRequest is the payload for DELETE /terminals/:terminal/orders/:id
type CancelRequest struct {
	ReasonCode string `json:"reasonCode" validate:"required,cancel_reason"`
	Note       string `json:"note,omitempty"` // required when reasonCode is OTHER
	ActorID    string `json:"actorId" validate:"required"`
}

func (r CancelRequest) Request() cancellation.Request {
	return cancellation.Request{ReasonCode: r.ReasonCode, Note: r.Note, ActorID: r.ActorID}
}

// FailedDeliveryRequest is the payload for POST /orders/:id/failed-delivery
type FailedDeliveryRequest struct {
	ReasonCode string `json:"reasonCode" validate:"required,delivery_reason"`
	Note       string `json:"note,omitempty"`
	ActorID    string `json:"actorId" validate:"required"`
}

func (r FailedDeliveryRequest) Request() cancellation.Request {
	return cancellation.Request{ReasonCode: r.ReasonCode, Note: r.Note, ActorID: r.ActorID}
}

// OverrideRequest is the payload for POST /payments/:txnRef/override
type OverrideRequest struct {
	Verdict string `json:"verdict" validate:"required,oneof=success failed"`
	ActorID string `json:"actorId" validate:"required"`
	Note    string `json:"note" validate:"required"`
}
