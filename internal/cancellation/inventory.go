package cancellation

import (
	"context"
	"strconv"

	"github.com/imrishuroy/pos-orderflow/internal/aws"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// RestockLine is one product detail to put back on the shelf.
type RestockLine struct {
	ProductDetailID int64  `json:"product_detail_id"`
	SKU             string `json:"sku"`
	Quantity        int64  `json:"quantity"`
}

// RestockMessage is published for the inventory service.
type RestockMessage struct {
	OrderID        int64                   `json:"order_id"`
	CancellationID string                  `json:"cancellation_id"`
	Kind           orders.CancellationKind `json:"kind"`
	ReasonCode     string                  `json:"reason_code"`
	Lines          []RestockLine           `json:"lines"`
}

// SQSInventory asks the inventory service to restock through a queue.
type SQSInventory struct {
	publisher *aws.Publisher
}

func NewSQSInventory(p *aws.Publisher) *SQSInventory {
	return &SQSInventory{publisher: p}
}

func (s *SQSInventory) Restock(ctx context.Context, order orders.DraftOrder, rec orders.CancellationRecord) error {
	msg := RestockMessage{
		OrderID:        order.ID,
		CancellationID: rec.ID,
		Kind:           rec.Kind,
		ReasonCode:     rec.ReasonCode,
		Lines:          make([]RestockLine, 0, len(order.Lines)),
	}
	for _, l := range order.Lines {
		msg.Lines = append(msg.Lines, RestockLine{ProductDetailID: l.ProductDetailID, SKU: l.SKU, Quantity: l.Quantity})
	}
	return s.publisher.SendJSON(ctx, msg, map[string]string{
		"kind":     string(rec.Kind),
		"order_id": strconv.FormatInt(order.ID, 10),
	})
}
