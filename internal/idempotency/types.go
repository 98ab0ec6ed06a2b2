package idempotency

import (
	"time"

	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// State of a ledger entry.
type State string

const (
	StateFinal        State = "FINAL"
	StateDeferred     State = "DEFERRED"
	StateManualReview State = "MANUAL_REVIEW"
)

// Record is the shape persisted in the reconciliation ledger table, one per
// gateway txnRef.
type Record struct {
	TxnRef       string            `dynamodbav:"txn_ref"` // PK
	OrderID      int64             `dynamodbav:"order_id"`
	Verdict      orders.Verdict    `dynamodbav:"verdict"`
	State        State             `dynamodbav:"state"`
	ResponseCode string            `dynamodbav:"response_code"`
	Params       map[string]string `dynamodbav:"params,omitempty"` // signed callback, kept for redrive
	Attempts     int               `dynamodbav:"attempts"`
	Conflicts    int               `dynamodbav:"conflicts,omitempty"`
	Note         string            `dynamodbav:"note,omitempty"`
	CreatedAt    time.Time         `dynamodbav:"created_at"`
	UpdatedAt    time.Time         `dynamodbav:"updated_at"`
	ExpiresAt    int64             `dynamodbav:"expires_at"` // TTL epoch seconds
}

// Pending reports whether the entry still waits for the backend.
func (r Record) Pending() bool {
	return r.State == StateDeferred || r.State == StateManualReview
}
