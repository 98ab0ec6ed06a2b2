package handlers

import "github.com/imrishuroy/pos-orderflow/internal/orders"

type lineView struct {
	orders.OrderLine
	EffectiveUnitPrice int64 `json:"effectiveUnitPrice"`
}

// orderView is the order as shown to the cashier.
type orderView struct {
	orders.DraftOrder
	Lines         []lineView           `json:"lines"`
	PaymentStatus orders.PaymentStatus `json:"paymentStatus"`
	TxnRef        string               `json:"txnRef,omitempty"`
}

func viewOf(o orders.DraftOrder) orderView {
	v := orderView{DraftOrder: o, Lines: make([]lineView, 0, len(o.Lines)), PaymentStatus: o.PaymentStatus()}
	for _, l := range o.Lines {
		v.Lines = append(v.Lines, lineView{OrderLine: l, EffectiveUnitPrice: l.EffectiveUnitPrice()})
	}
	if o.PaymentAttempt > 0 {
		v.TxnRef = o.TxnRef()
	}
	return v
}
