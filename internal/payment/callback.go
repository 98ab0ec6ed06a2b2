package payment

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// Callback is the gateway's redirect result. Untrusted until the backend has
// verified SecureHash.
type Callback struct {
	ResponseCode  string
	TxnRef        string
	Amount        int64 // minor units, x100
	BankCode      string
	TransactionNo string
	SecureHash    string

	Raw url.Values
}

// ParseCallback extracts the vnp_ parameters. Signature checking is left to
// the backend.
func ParseCallback(v url.Values) (Callback, error) {
	cb := Callback{
		ResponseCode:  strings.TrimSpace(v.Get("vnp_ResponseCode")),
		TxnRef:        strings.TrimSpace(v.Get("vnp_TxnRef")),
		BankCode:      v.Get("vnp_BankCode"),
		TransactionNo: v.Get("vnp_TransactionNo"),
		SecureHash:    v.Get("vnp_SecureHash"),
		Raw:           v,
	}
	if cb.TxnRef == "" {
		return Callback{}, orders.Invalid("vnp_TxnRef", "required")
	}
	if len(cb.ResponseCode) != 2 {
		return Callback{}, orders.Invalid("vnp_ResponseCode", "must be a 2-digit code")
	}
	if cb.SecureHash == "" {
		return Callback{}, orders.Invalid("vnp_SecureHash", "required")
	}
	amount, err := strconv.ParseInt(v.Get("vnp_Amount"), 10, 64)
	if err != nil || amount < 0 {
		return Callback{}, orders.Invalid("vnp_Amount", "must be a non-negative integer")
	}
	cb.Amount = amount
	return cb, nil
}

func flatten(v url.Values) map[string]string {
	out := make(map[string]string, len(v))
	for k := range v {
		out[k] = v.Get(k)
	}
	return out
}

func unflatten(m map[string]string) url.Values {
	v := make(url.Values, len(m))
	for k, s := range m {
		v.Set(k, s)
	}
	return v
}
