package orders

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"testing"

	"go.uber.org/zap"
)

const testSecret = "test-hash-secret"

func newTestService(t *testing.T) (*Service, *Store) {
	t.Helper()
	store, _ := newTestStore(t)
	return NewService(store, NewHMACVerifier(testSecret), zap.NewNop()), store
}

func signedCallback(txnRef, code string, amount int64) url.Values {
	v := url.Values{}
	v.Set("vnp_TxnRef", txnRef)
	v.Set("vnp_ResponseCode", code)
	v.Set("vnp_Amount", strconv.FormatInt(amount, 10))
	v.Set("vnp_BankCode", "NCB")
	v.Set("vnp_TransactionNo", "14000001")
	v.Set("vnp_SecureHash", NewHMACVerifier(testSecret).Sign(v))
	return v
}

// checkedOut creates a draft with one line and checks it out.
func checkedOut(t *testing.T, svc *Service, total int64) DraftOrder {
	t.Helper()
	ctx := context.Background()
	o, err := svc.CreateDraft(ctx, "pos-1")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	o.Lines = []OrderLine{{ProductDetailID: 1, Quantity: 1, Price: total, TotalAmount: total}}
	o.Subtotal, o.TotalAmount = total, total
	if err := svc.UpdateLineQuantity(ctx, o, 1); err != nil {
		t.Fatalf("UpdateLineQuantity: %v", err)
	}
	o, err = svc.Checkout(ctx, o.ID)
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	return o
}

func TestCheckout_RejectsEmptyOrder(t *testing.T) {
	svc, _ := newTestService(t)
	o, err := svc.CreateDraft(context.Background(), "pos-1")
	if err != nil {
		t.Fatalf("CreateDraft: %v", err)
	}
	if _, err := svc.Checkout(context.Background(), o.ID); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCheckout_LocksDraft(t *testing.T) {
	svc, _ := newTestService(t)
	o := checkedOut(t, svc, 850000)
	if o.Status != StatusPendingPayment || o.PaymentAttempt != 1 {
		t.Fatalf("unexpected order after checkout: %+v", o)
	}

	o.Subtotal = 1
	err := svc.ApplyVoucher(context.Background(), o)
	if !errors.Is(err, ErrOrderLocked) {
		t.Fatalf("expected ErrOrderLocked, got %v", err)
	}
}

func TestSaveDraft_MissingOrder(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.AttachCustomer(context.Background(), DraftOrder{ID: 404})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestFinalizePayment_Success(t *testing.T) {
	svc, store := newTestService(t)
	o := checkedOut(t, svc, 850000)

	verdict, err := svc.FinalizePayment(context.Background(), signedCallback(o.TxnRef(), "00", 85000000))
	if err != nil {
		t.Fatalf("FinalizePayment: %v", err)
	}
	if verdict != VerdictSuccess {
		t.Fatalf("expected success, got %s", verdict)
	}
	got, _ := store.Get(context.Background(), o.ID)
	if got.Status != StatusPaid || got.Payment == nil || got.Payment.TransactionNo != "14000001" {
		t.Fatalf("unexpected stored order %+v", got)
	}

	// replay is idempotent
	verdict, err = svc.FinalizePayment(context.Background(), signedCallback(o.TxnRef(), "00", 85000000))
	if err != nil || verdict != VerdictSuccess {
		t.Fatalf("replay: %s %v", verdict, err)
	}
}

func TestFinalizePayment_AmountMismatchFails(t *testing.T) {
	svc, store := newTestService(t)
	o := checkedOut(t, svc, 850000)

	verdict, err := svc.FinalizePayment(context.Background(), signedCallback(o.TxnRef(), "00", 100))
	if err != nil {
		t.Fatalf("FinalizePayment: %v", err)
	}
	if verdict != VerdictFailed {
		t.Fatalf("expected failed, got %s", verdict)
	}
	got, _ := store.Get(context.Background(), o.ID)
	if got.Status != StatusPaymentFailed {
		t.Fatalf("expected PAYMENT_FAILED, got %s", got.Status)
	}
}

func TestFinalizePayment_SuspiciousCodeIsFailure(t *testing.T) {
	svc, _ := newTestService(t)
	o := checkedOut(t, svc, 1000)

	verdict, err := svc.FinalizePayment(context.Background(), signedCallback(o.TxnRef(), "07", 100000))
	if err != nil || verdict != VerdictFailed {
		t.Fatalf("expected failed verdict for 07, got %s %v", verdict, err)
	}
}

func TestFinalizePayment_PaidCallbackAfterCancelIsConflict(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	o := checkedOut(t, svc, 1000)

	rec := CancellationRecord{Kind: KindCancel, ReasonCode: "CUSTOMER_REQUEST", Reason: "x", ActorID: "staff-1"}
	if _, err := svc.Cancel(ctx, o.ID, rec); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	verdict, err := svc.FinalizePayment(ctx, signedCallback(o.TxnRef(), "00", 100000))
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ConflictError, got %s %v", verdict, err)
	}
	if cerr.Existing != VerdictFailed || cerr.Incoming != VerdictSuccess {
		t.Fatalf("unexpected conflict %+v", cerr)
	}
	got, _ := store.Get(ctx, o.ID)
	if got.Status != StatusCancelled {
		t.Fatalf("conflict must not touch the order, got %s", got.Status)
	}

	// a failed callback agrees with the cancellation
	if verdict, err := svc.FinalizePayment(ctx, signedCallback(o.TxnRef(), "24", 100000)); err != nil || verdict != VerdictFailed {
		t.Fatalf("expected failed replay, got %s %v", verdict, err)
	}
}

func TestFinalizePayment_RejectsBadSignature(t *testing.T) {
	svc, _ := newTestService(t)
	o := checkedOut(t, svc, 1000)

	params := signedCallback(o.TxnRef(), "00", 100000)
	params.Set("vnp_Amount", "1") // tampered after signing
	if _, err := svc.FinalizePayment(context.Background(), params); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestFinalizePayment_StaleAttempt(t *testing.T) {
	svc, _ := newTestService(t)
	o := checkedOut(t, svc, 1000)

	stale := FormatTxnRef(o.ID, o.PaymentAttempt+1)
	if _, err := svc.FinalizePayment(context.Background(), signedCallback(stale, "00", 100000)); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCancelAndFailedDelivery(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	o := checkedOut(t, svc, 1000)
	rec := CancellationRecord{Kind: KindCancel, ReasonCode: "CUSTOMER_REQUEST", Reason: "x", ActorID: "staff-1"}
	cancelled, err := svc.Cancel(ctx, o.ID, rec)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled || cancelled.Cancellation == nil || cancelled.Cancellation.ActorID != "staff-1" {
		t.Fatalf("unexpected cancelled order %+v", cancelled)
	}

	// cancelled is terminal
	_, err = svc.Cancel(ctx, o.ID, rec)
	var te *TransitionError
	if !errors.As(err, &te) || te.From != StatusCancelled {
		t.Fatalf("expected TransitionError from CANCELLED, got %v", err)
	}

	// failed delivery only applies after dispatch
	paid := checkedOut(t, svc, 2000)
	if _, err := svc.FinalizePayment(ctx, signedCallback(paid.TxnRef(), "00", 200000)); err != nil {
		t.Fatalf("FinalizePayment: %v", err)
	}
	fd := CancellationRecord{Kind: KindFailedDelivery, ReasonCode: "WRONG_ADDRESS", Reason: "y", ActorID: "staff-2"}
	if _, err := svc.MarkFailedDelivery(ctx, paid.ID, fd); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition before dispatch, got %v", err)
	}
	if _, err := svc.MarkDispatched(ctx, paid.ID); err != nil {
		t.Fatalf("MarkDispatched: %v", err)
	}
	failed, err := svc.MarkFailedDelivery(ctx, paid.ID, fd)
	if err != nil || failed.Status != StatusFailedDelivery {
		t.Fatalf("MarkFailedDelivery: %+v %v", failed, err)
	}
}

func TestResolveManually(t *testing.T) {
	svc, _ := newTestService(t)
	o := checkedOut(t, svc, 1000)

	if _, err := svc.ResolveManually(context.Background(), o.ID, StatusDelivered, "nope"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, err := svc.ResolveManually(context.Background(), o.ID, StatusPaid, "bank statement checked")
	if err != nil || got.Status != StatusPaid {
		t.Fatalf("ResolveManually: %+v %v", got, err)
	}
}
