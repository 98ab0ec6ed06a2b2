package orders

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/imrishuroy/pos-orderflow/internal/discount"
)

// PaymentStatus is the coarse payment state shown on a draft order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentPaid      PaymentStatus = "paid"
	PaymentCancelled PaymentStatus = "cancelled"
)

// Verdict is the outcome of reconciling a payment callback.
type Verdict string

const (
	VerdictSuccess Verdict = "success"
	VerdictFailed  Verdict = "failed"
	VerdictUnknown Verdict = "unknown"
)

// CustomerRef attributes a cart to a customer. A nil ref means walk-in guest.
type CustomerRef struct {
	ID          string `json:"id" dynamodbav:"id"`
	FullName    string `json:"fullName" dynamodbav:"full_name"`
	Email       string `json:"email,omitempty" dynamodbav:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty" dynamodbav:"phone_number,omitempty"`
}

// OrderLine is one product detail in a draft order. Discount is the absolute
// amount for the whole line, already multiplied by Quantity.
type OrderLine struct {
	ProductDetailID int64               `json:"productDetailId" dynamodbav:"product_detail_id"`
	SKU             string              `json:"sku" dynamodbav:"sku"`
	ProductName     string              `json:"productName" dynamodbav:"product_name"`
	Quantity        int64               `json:"quantity" dynamodbav:"quantity"`
	Price           int64               `json:"price" dynamodbav:"price"`
	Promotion       *discount.Promotion `json:"promotion,omitempty" dynamodbav:"promotion,omitempty"`
	Discount        int64               `json:"discount" dynamodbav:"discount"`
	TotalAmount     int64               `json:"totalAmount" dynamodbav:"total_amount"`
}

// EffectiveUnitPrice is the display price per unit after the line discount.
func (l OrderLine) EffectiveUnitPrice() int64 {
	return discount.EffectiveUnitPrice(l.Price, l.Discount, l.Quantity)
}

// PaymentInfo keeps what the gateway reported for the finalizing callback.
type PaymentInfo struct {
	ResponseCode  string `json:"responseCode" dynamodbav:"response_code"`
	TransactionNo string `json:"transactionNo,omitempty" dynamodbav:"transaction_no,omitempty"`
	BankCode      string `json:"bankCode,omitempty" dynamodbav:"bank_code,omitempty"`
	Amount        int64  `json:"amount" dynamodbav:"amount"`
}

// CancellationKind tells the two termination workflows apart.
type CancellationKind string

const (
	KindCancel         CancellationKind = "cancel"
	KindFailedDelivery CancellationKind = "failed_delivery"
)

// CancellationRecord is written once when an order is cancelled or its
// delivery fails.
type CancellationRecord struct {
	ID         string           `json:"id" dynamodbav:"id"`
	Kind       CancellationKind `json:"kind" dynamodbav:"kind"`
	ReasonCode string           `json:"reasonCode" dynamodbav:"reason_code"`
	Reason     string           `json:"reason" dynamodbav:"reason"`
	Note       string           `json:"note,omitempty" dynamodbav:"note,omitempty"`
	ActorID    string           `json:"actorId" dynamodbav:"actor_id"`
	Timestamp  time.Time        `json:"timestamp" dynamodbav:"timestamp"`
}

// DraftOrder is the item stored in the orders table. Invariant after every
// recompute: TotalAmount == Subtotal - ProductDiscount - VoucherDiscount >= 0.
type DraftOrder struct {
	ID              int64               `json:"id" dynamodbav:"order_id"` // PK
	TerminalID      string              `json:"terminalId" dynamodbav:"terminal_id"`
	Lines           []OrderLine         `json:"lines" dynamodbav:"lines"`
	Customer        *CustomerRef        `json:"customer" dynamodbav:"customer,omitempty"`
	Voucher         *discount.Voucher   `json:"voucher,omitempty" dynamodbav:"voucher,omitempty"`
	Subtotal        int64               `json:"subtotal" dynamodbav:"subtotal"`
	ProductDiscount int64               `json:"productDiscount" dynamodbav:"product_discount"`
	VoucherDiscount int64               `json:"voucherDiscount" dynamodbav:"voucher_discount"`
	TotalAmount     int64               `json:"totalAmount" dynamodbav:"total_amount"`
	Status          Status              `json:"status" dynamodbav:"status"`
	PaymentAttempt  int                 `json:"paymentAttempt" dynamodbav:"payment_attempt"`
	Payment         *PaymentInfo        `json:"payment,omitempty" dynamodbav:"payment,omitempty"`
	Cancellation    *CancellationRecord `json:"cancellation,omitempty" dynamodbav:"cancellation,omitempty"`
	CreatedAt       time.Time           `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt       time.Time           `json:"updatedAt" dynamodbav:"updated_at"`
}

// PaymentStatus derives the coarse payment state from Status.
func (o DraftOrder) PaymentStatus() PaymentStatus {
	return o.Status.PaymentStatus()
}

// TxnRef is the gateway correlation id of the current payment attempt.
func (o DraftOrder) TxnRef() string {
	return FormatTxnRef(o.ID, o.PaymentAttempt)
}

// FormatTxnRef renders "<orderID>-<attempt>".
func FormatTxnRef(orderID int64, attempt int) string {
	return fmt.Sprintf("%d-%d", orderID, attempt)
}

// ParseTxnRef splits a gateway txnRef into order id and payment attempt.
// A bare order id is attempt 1.
func ParseTxnRef(ref string) (orderID int64, attempt int, err error) {
	idPart, attemptPart, found := strings.Cut(strings.TrimSpace(ref), "-")
	orderID, err = strconv.ParseInt(idPart, 10, 64)
	if err != nil || orderID <= 0 {
		return 0, 0, Invalid("txnRef", fmt.Sprintf("%q is not an order reference", ref))
	}
	attempt = 1
	if found {
		attempt, err = strconv.Atoi(attemptPart)
		if err != nil || attempt <= 0 {
			return 0, 0, Invalid("txnRef", fmt.Sprintf("%q has a malformed attempt", ref))
		}
	}
	return orderID, attempt, nil
}

// Line returns the line for productDetailID.
func (o DraftOrder) Line(productDetailID int64) (OrderLine, bool) {
	for _, l := range o.Lines {
		if l.ProductDetailID == productDetailID {
			return l, true
		}
	}
	return OrderLine{}, false
}

// Clone returns a deep copy so a mutation can be staged without touching o.
func (o DraftOrder) Clone() DraftOrder {
	c := o
	c.Lines = make([]OrderLine, len(o.Lines))
	for i, l := range o.Lines {
		if l.Promotion != nil {
			p := *l.Promotion
			l.Promotion = &p
		}
		c.Lines[i] = l
	}
	if o.Customer != nil {
		cu := *o.Customer
		c.Customer = &cu
	}
	if o.Voucher != nil {
		v := *o.Voucher
		c.Voucher = &v
	}
	if o.Payment != nil {
		p := *o.Payment
		c.Payment = &p
	}
	if o.Cancellation != nil {
		r := *o.Cancellation
		c.Cancellation = &r
	}
	return c
}
