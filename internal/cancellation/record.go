package cancellation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// Request is what the operator submits to cancel or fail an order.
type Request struct {
	ReasonCode string
	Note       string
	ActorID    string
}

// BuildRecord validates req against the reason set of kind. For OTHER the
// note is mandatory and stored verbatim as the reason; any other code
// stores its canonical label and keeps the note for audit only.
func BuildRecord(kind orders.CancellationKind, req Request, now time.Time) (orders.CancellationRecord, error) {
	code := strings.TrimSpace(req.ReasonCode)

	var label string
	switch kind {
	case orders.KindCancel:
		r := CancelReason(code)
		if !r.Valid() {
			return orders.CancellationRecord{}, orders.Invalid("reasonCode", fmt.Sprintf("unknown cancellation reason %q", code))
		}
		label = r.Label()
	case orders.KindFailedDelivery:
		r := DeliveryFailureReason(code)
		if !r.Valid() {
			return orders.CancellationRecord{}, orders.Invalid("reasonCode", fmt.Sprintf("unknown delivery failure reason %q", code))
		}
		label = r.Label()
	default:
		return orders.CancellationRecord{}, orders.Invalid("kind", fmt.Sprintf("unknown kind %q", kind))
	}

	if strings.TrimSpace(req.ActorID) == "" {
		return orders.CancellationRecord{}, orders.Invalid("actorId", "required")
	}

	reason := label
	if code == "OTHER" {
		if strings.TrimSpace(req.Note) == "" {
			return orders.CancellationRecord{}, orders.Invalid("note", "required when reason is OTHER")
		}
		reason = req.Note
	}

	return orders.CancellationRecord{
		ID:         uuid.NewString(),
		Kind:       kind,
		ReasonCode: code,
		Reason:     reason,
		Note:       req.Note,
		ActorID:    req.ActorID,
		Timestamp:  now.UTC(),
	}, nil
}
