package main

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/payment"
)

// Redriver settles deferred payment callbacks.
type Redriver interface {
	Redrive(ctx context.Context, txnRef string) (payment.Result, error)
}

// Processor drains the deferred-callback queue.
type Processor struct {
	redriver Redriver
	log      *zap.Logger
}

func NewProcessor(r Redriver, log *zap.Logger) *Processor {
	return &Processor{redriver: r, log: log}
}

// Handle processes a batch and reports the messages that should come back.
// Only an unreachable backend is worth another delivery; anything else is
// logged and acknowledged so it does not spin until the DLQ.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	log := p.log.With(zap.String("message_id", rec.MessageId))

	var msg payment.DeferredMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil || msg.TxnRef == "" {
		log.Error("dropping malformed deferred message", zap.String("body", rec.Body), zap.Error(err))
		return nil
	}
	log = log.With(zap.String("txn_ref", msg.TxnRef), zap.Int64("order_id", msg.OrderID))

	res, err := p.redriver.Redrive(ctx, msg.TxnRef)
	switch {
	case err == nil:
		log.Info("redrive done", zap.String("outcome", string(res.Outcome)), zap.String("verdict", string(res.Verdict)))
		return nil
	case errors.Is(err, orders.ErrBackendUnavailable):
		log.Warn("redrive deferred again", zap.Error(err))
		return err
	default:
		log.Error("redrive failed", zap.Error(err))
		return nil
	}
}
