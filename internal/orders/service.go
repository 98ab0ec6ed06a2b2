package orders

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Service is the order backend of record: draft persistence, status
// transitions and payment finalization.
type Service struct {
	store    *Store
	verifier SignatureVerifier
	log      *zap.Logger
	nowFunc  func() time.Time
}

func NewService(store *Store, verifier SignatureVerifier, log *zap.Logger) *Service {
	return &Service{store: store, verifier: verifier, log: log, nowFunc: time.Now}
}

var editable = []Status{StatusDraft, StatusPaymentFailed}

// awaitingPayment are the statuses a payment verdict can still settle.
var awaitingPayment = []Status{StatusPendingPayment, StatusDeferred, StatusManualReview}

// CreateDraft allocates an id and stores an empty draft for terminalID.
func (s *Service) CreateDraft(ctx context.Context, terminalID string) (DraftOrder, error) {
	id, err := s.store.NextID(ctx)
	if err != nil {
		return DraftOrder{}, err
	}
	now := s.nowFunc().UTC()
	o := DraftOrder{
		ID:         id,
		TerminalID: terminalID,
		Lines:      []OrderLine{},
		Status:     StatusDraft,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return DraftOrder{}, err
	}
	s.log.Info("draft created", zap.Int64("order_id", id), zap.String("terminal_id", terminalID))
	return o, nil
}

// UpdateLineQuantity persists the snapshot after a line change.
func (s *Service) UpdateLineQuantity(ctx context.Context, order DraftOrder, productDetailID int64) error {
	if err := s.saveDraft(ctx, order); err != nil {
		return err
	}
	s.log.Debug("line updated", zap.Int64("order_id", order.ID), zap.Int64("product_detail_id", productDetailID),
		zap.Int64("total_amount", order.TotalAmount))
	return nil
}

// ApplyVoucher persists the snapshot after the voucher changed.
func (s *Service) ApplyVoucher(ctx context.Context, order DraftOrder) error {
	return s.saveDraft(ctx, order)
}

// AttachCustomer persists the snapshot after the customer changed.
func (s *Service) AttachCustomer(ctx context.Context, order DraftOrder) error {
	return s.saveDraft(ctx, order)
}

func (s *Service) saveDraft(ctx context.Context, order DraftOrder) error {
	err := s.store.Save(ctx, order, editable)
	if !errors.Is(err, ErrStatusMismatch) {
		return err
	}
	cur, gerr := s.store.Get(ctx, order.ID)
	if gerr != nil {
		return gerr
	}
	if cur == nil {
		return fmt.Errorf("order %d: %w", order.ID, ErrOrderNotFound)
	}
	return fmt.Errorf("order %d is %s: %w", order.ID, cur.Status, ErrOrderLocked)
}

func (s *Service) get(ctx context.Context, id int64) (DraftOrder, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return DraftOrder{}, err
	}
	if o == nil {
		return DraftOrder{}, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	return *o, nil
}

// Get returns the stored order.
func (s *Service) Get(ctx context.Context, id int64) (DraftOrder, error) {
	return s.get(ctx, id)
}

func (s *Service) transition(ctx context.Context, id int64, expected []Status, to Status, extra map[string]interface{}) (DraftOrder, error) {
	err := s.store.UpdateStatus(ctx, id, expected, to, extra)
	if errors.Is(err, ErrStatusMismatch) {
		cur, gerr := s.get(ctx, id)
		if gerr != nil {
			return DraftOrder{}, gerr
		}
		return DraftOrder{}, &TransitionError{OrderID: id, From: cur.Status, To: to}
	}
	if err != nil {
		return DraftOrder{}, err
	}
	o, err := s.get(ctx, id)
	if err != nil {
		return DraftOrder{}, err
	}
	s.log.Info("order status changed", zap.Int64("order_id", id), zap.String("status", string(to)))
	return o, nil
}

// Checkout locks the order for payment and opens a new payment attempt.
func (s *Service) Checkout(ctx context.Context, id int64) (DraftOrder, error) {
	o, err := s.get(ctx, id)
	if err != nil {
		return DraftOrder{}, err
	}
	if len(o.Lines) == 0 {
		return DraftOrder{}, Invalid("lines", "order has no lines")
	}
	if o.TotalAmount <= 0 {
		return DraftOrder{}, Invalid("totalAmount", "order total must be positive")
	}
	return s.transition(ctx, id, Sources(StatusPendingPayment), StatusPendingPayment,
		map[string]interface{}{"payment_attempt": o.PaymentAttempt + 1})
}

// Cancel moves the order to CANCELLED and stores the record.
func (s *Service) Cancel(ctx context.Context, id int64, rec CancellationRecord) (DraftOrder, error) {
	if rec.Kind != KindCancel {
		return DraftOrder{}, Invalid("kind", "expected a cancellation record")
	}
	return s.transition(ctx, id, Sources(StatusCancelled), StatusCancelled,
		map[string]interface{}{"cancellation": rec})
}

// MarkFailedDelivery moves a dispatched order to FAILED_DELIVERY.
func (s *Service) MarkFailedDelivery(ctx context.Context, id int64, rec CancellationRecord) (DraftOrder, error) {
	if rec.Kind != KindFailedDelivery {
		return DraftOrder{}, Invalid("kind", "expected a failed-delivery record")
	}
	return s.transition(ctx, id, Sources(StatusFailedDelivery), StatusFailedDelivery,
		map[string]interface{}{"cancellation": rec})
}

// MarkDispatched hands a paid order to delivery.
func (s *Service) MarkDispatched(ctx context.Context, id int64) (DraftOrder, error) {
	return s.transition(ctx, id, Sources(StatusDispatched), StatusDispatched, nil)
}

// MarkDelivered closes a dispatched order.
func (s *Service) MarkDelivered(ctx context.Context, id int64) (DraftOrder, error) {
	return s.transition(ctx, id, Sources(StatusDelivered), StatusDelivered, nil)
}

// ResolveManually settles an order stuck awaiting payment confirmation.
func (s *Service) ResolveManually(ctx context.Context, id int64, to Status, note string) (DraftOrder, error) {
	if to != StatusPaid && to != StatusPaymentFailed && to != StatusCancelled {
		return DraftOrder{}, Invalid("status", fmt.Sprintf("%s is not a manual resolution", to))
	}
	var expected []Status
	for _, st := range awaitingPayment {
		if CanTransition(st, to) {
			expected = append(expected, st)
		}
	}
	s.log.Warn("manual payment resolution", zap.Int64("order_id", id), zap.String("status", string(to)), zap.String("note", note))
	return s.transition(ctx, id, expected, to, nil)
}

// settledVerdict is the verdict implied by an order that already left the
// awaiting-payment states.
func settledVerdict(st Status) Verdict {
	if st.PaymentStatus() == PaymentPaid {
		return VerdictSuccess
	}
	return VerdictFailed
}

// alreadySettled answers a callback for an order that left the awaiting
// states. A replay agreeing with the settled verdict is fine; one that
// contradicts it (a paid callback for an order cancelled meanwhile) is a
// conflict for a human.
func alreadySettled(ref string, st Status, incoming Verdict) (Verdict, error) {
	settled := settledVerdict(st)
	if incoming != settled {
		return settled, &ConflictError{TxnRef: ref, Existing: settled, Incoming: incoming}
	}
	return settled, nil
}

func awaiting(st Status) bool {
	for _, x := range awaitingPayment {
		if x == st {
			return true
		}
	}
	return false
}

// FinalizePayment verifies the gateway callback and settles the order. The
// payment succeeds only for response code 00 with an amount matching the
// order total. Replays return the verdict already recorded, or a
// *ConflictError when they contradict it.
func (s *Service) FinalizePayment(ctx context.Context, params url.Values) (Verdict, error) {
	if !s.verifier.Verify(params) {
		return VerdictUnknown, ErrInvalidSignature
	}
	ref := params.Get("vnp_TxnRef")
	id, attempt, err := ParseTxnRef(ref)
	if err != nil {
		return VerdictUnknown, err
	}
	o, err := s.get(ctx, id)
	if err != nil {
		return VerdictUnknown, err
	}
	if attempt != o.PaymentAttempt {
		return VerdictUnknown, fmt.Errorf("txn %s is not the current attempt %d: %w", ref, o.PaymentAttempt, ErrInvalidTransition)
	}

	code := params.Get("vnp_ResponseCode")
	amount, _ := strconv.ParseInt(params.Get("vnp_Amount"), 10, 64)
	verdict := VerdictFailed
	if code == "00" {
		if amount == o.TotalAmount*100 {
			verdict = VerdictSuccess
		} else {
			s.log.Warn("callback amount mismatch", zap.Int64("order_id", id),
				zap.Int64("expected", o.TotalAmount*100), zap.Int64("got", amount))
		}
	}

	if !awaiting(o.Status) {
		if o.Status == StatusDraft {
			return VerdictUnknown, &TransitionError{OrderID: id, From: o.Status, To: StatusFor(verdict)}
		}
		return alreadySettled(ref, o.Status, verdict)
	}

	info := PaymentInfo{
		ResponseCode:  code,
		TransactionNo: params.Get("vnp_TransactionNo"),
		BankCode:      params.Get("vnp_BankCode"),
		Amount:        amount / 100,
	}
	err = s.store.UpdateStatus(ctx, id, awaitingPayment, StatusFor(verdict), map[string]interface{}{"payment": info})
	if errors.Is(err, ErrStatusMismatch) {
		// settled concurrently
		cur, gerr := s.get(ctx, id)
		if gerr != nil {
			return VerdictUnknown, gerr
		}
		return alreadySettled(ref, cur.Status, verdict)
	}
	if err != nil {
		return VerdictUnknown, err
	}
	s.log.Info("payment finalized", zap.Int64("order_id", id), zap.String("txn_ref", ref),
		zap.String("response_code", code), zap.String("verdict", string(verdict)))
	return verdict, nil
}
