package orders

// Status is the lifecycle state of an order.
type Status string

const (
	StatusDraft          Status = "DRAFT"
	StatusPendingPayment Status = "PENDING_PAYMENT"
	StatusPaid           Status = "PAID"
	StatusPaymentFailed  Status = "PAYMENT_FAILED"
	StatusDeferred       Status = "DEFERRED"
	StatusManualReview   Status = "MANUAL_REVIEW"
	StatusCancelled      Status = "CANCELLED"
	StatusDispatched     Status = "DISPATCHED"
	StatusDelivered      Status = "DELIVERED"
	StatusFailedDelivery Status = "FAILED_DELIVERY"
)

var transitions = map[Status][]Status{
	StatusDraft:          {StatusPendingPayment, StatusCancelled},
	StatusPendingPayment: {StatusPaid, StatusPaymentFailed, StatusDeferred, StatusCancelled},
	StatusPaymentFailed:  {StatusPendingPayment, StatusCancelled},
	StatusDeferred:       {StatusPaid, StatusPaymentFailed, StatusManualReview},
	StatusManualReview:   {StatusPaid, StatusPaymentFailed, StatusCancelled},
	StatusPaid:           {StatusDispatched, StatusCancelled},
	StatusDispatched:     {StatusDelivered, StatusFailedDelivery},
}

// CanTransition reports whether from -> to is in the transition table.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Sources lists every status that may move to to.
func Sources(to Status) []Status {
	var out []Status
	for _, from := range allStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

var allStatuses = []Status{
	StatusDraft, StatusPendingPayment, StatusPaid, StatusPaymentFailed, StatusDeferred,
	StatusManualReview, StatusCancelled, StatusDispatched, StatusDelivered, StatusFailedDelivery,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, x := range allStatuses {
		if x == s {
			return true
		}
	}
	return false
}

// Editable reports whether the cashier may change lines, voucher or customer.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusPaymentFailed
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// PaymentStatus maps the lifecycle onto pending | paid | cancelled.
func (s Status) PaymentStatus() PaymentStatus {
	switch s {
	case StatusPaid, StatusDispatched, StatusDelivered, StatusFailedDelivery:
		return PaymentPaid
	case StatusCancelled:
		return PaymentCancelled
	default:
		return PaymentPending
	}
}

// StatusFor is the order status a confirmed verdict leads to.
func StatusFor(v Verdict) Status {
	if v == VerdictSuccess {
		return StatusPaid
	}
	return StatusPaymentFailed
}
