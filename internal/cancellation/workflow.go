// Package cancellation moves orders to CANCELLED or FAILED_DELIVERY with a
// reason record and asks inventory to take the stock back.
package cancellation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/retry"
)

// Backend applies the terminating transition. orders.Service implements it.
type Backend interface {
	Cancel(ctx context.Context, id int64, rec orders.CancellationRecord) (orders.DraftOrder, error)
	MarkFailedDelivery(ctx context.Context, id int64, rec orders.CancellationRecord) (orders.DraftOrder, error)
}

// Inventory returns the stock of a terminated order.
type Inventory interface {
	Restock(ctx context.Context, order orders.DraftOrder, rec orders.CancellationRecord) error
}

// Result reports the transition and, separately, how restocking went. A
// restock failure does not undo the transition.
type Result struct {
	Record     orders.CancellationRecord
	Order      orders.DraftOrder
	Status     orders.Status
	Restocked  bool
	RestockErr error
}

type Workflow struct {
	backend   Backend
	inventory Inventory
	policy    retry.Policy
	log       *zap.Logger
	nowFunc   func() time.Time
}

func NewWorkflow(backend Backend, inventory Inventory, policy retry.Policy, log *zap.Logger) *Workflow {
	return &Workflow{backend: backend, inventory: inventory, policy: policy, log: log, nowFunc: time.Now}
}

// Cancel voids an order that has not been dispatched.
func (w *Workflow) Cancel(ctx context.Context, orderID int64, req Request) (Result, error) {
	return w.run(ctx, orderID, orders.KindCancel, req, w.backend.Cancel)
}

// FailDelivery records that a dispatched order could not be delivered.
func (w *Workflow) FailDelivery(ctx context.Context, orderID int64, req Request) (Result, error) {
	return w.run(ctx, orderID, orders.KindFailedDelivery, req, w.backend.MarkFailedDelivery)
}

func (w *Workflow) run(ctx context.Context, orderID int64, kind orders.CancellationKind, req Request,
	apply func(context.Context, int64, orders.CancellationRecord) (orders.DraftOrder, error)) (Result, error) {
	rec, err := BuildRecord(kind, req, w.nowFunc())
	if err != nil {
		return Result{}, err
	}

	var order orders.DraftOrder
	err = retry.Do(ctx, w.policy, func() error {
		var err error
		order, err = apply(ctx, orderID, rec)
		if err != nil && orders.IsBusiness(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		if orders.IsBusiness(err) {
			return Result{}, err
		}
		w.log.Warn("termination failed", zap.Int64("order_id", orderID), zap.String("kind", string(kind)), zap.Error(err))
		return Result{}, orders.Unavailable(string(kind), err)
	}

	res := Result{Record: rec, Order: order, Status: order.Status}
	if len(order.Lines) > 0 {
		res.RestockErr = w.inventory.Restock(ctx, order, rec)
		res.Restocked = res.RestockErr == nil
		if res.RestockErr != nil {
			w.log.Error("restock failed", zap.Int64("order_id", orderID), zap.Error(res.RestockErr))
		}
	}
	w.log.Info("order terminated", zap.Int64("order_id", orderID), zap.String("status", string(order.Status)),
		zap.String("reason_code", rec.ReasonCode), zap.String("actor_id", rec.ActorID))
	return res, nil
}
