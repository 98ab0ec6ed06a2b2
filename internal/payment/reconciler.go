// Package payment turns gateway callbacks into authoritative order status.
// The backend's verdict is trusted over the raw response code; when the
// backend cannot be reached the callback is parked as DEFERRED and swept
// later.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/idempotency"
	"github.com/imrishuroy/pos-orderflow/internal/metrics"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/retry"
)

// Backend is the order service of record. orders.Service implements it.
type Backend interface {
	FinalizePayment(ctx context.Context, params url.Values) (orders.Verdict, error)
	ResolveManually(ctx context.Context, id int64, to orders.Status, note string) (orders.DraftOrder, error)
}

// Ledger remembers every txnRef seen. idempotency.Store implements it.
type Ledger interface {
	CreateIfNotExists(ctx context.Context, rec idempotency.Record) (bool, error)
	Get(ctx context.Context, txnRef string) (*idempotency.Record, error)
	Finalize(ctx context.Context, txnRef string, verdict orders.Verdict, note string) error
	IncrementAttempts(ctx context.Context, txnRef string) (int, error)
	MarkManualReview(ctx context.Context, txnRef, note string) error
	FlagConflict(ctx context.Context, txnRef, note string) error
}

// Queue carries deferred txnRefs to the sweep worker.
type Queue interface {
	SendJSON(ctx context.Context, payload interface{}, attributes map[string]string) error
}

// StatusNotifier is told about every status the reconciler decides, so
// terminals can unlock or drop the order.
type StatusNotifier interface {
	Resolve(orderID int64, st orders.Status)
}

// DeferredMessage is enqueued for each DEFERRED callback.
type DeferredMessage struct {
	TxnRef  string `json:"txn_ref"`
	OrderID int64  `json:"order_id"`
}

type Outcome string

const (
	OutcomePaid         Outcome = "paid"
	OutcomeFailed       Outcome = "failed"
	OutcomeDeferred     Outcome = "deferred"
	OutcomeManualReview Outcome = "manual_review"
	OutcomeDuplicate    Outcome = "duplicate"
)

// PendingNotice accompanies a provisional result.
const PendingNotice = "Hệ thống đang xác nhận kết quả thanh toán, vui lòng kiểm tra lại sau."

// Result is what the cashier sees for a callback.
type Result struct {
	TxnRef       string         `json:"txnRef"`
	OrderID      int64          `json:"orderId"`
	Verdict      orders.Verdict `json:"verdict"`
	Outcome      Outcome        `json:"outcome"`
	ResponseCode string         `json:"responseCode"`
	Message      string         `json:"message"`
	// Provisional is set while the backend has not confirmed Verdict.
	Provisional bool `json:"provisional"`
}

type Config struct {
	Policy              retry.Policy
	MaxDeferredAttempts int
	// Verifier checks the gateway hash before the ledger is consulted.
	// Callbacks are refused when it is nil.
	Verifier orders.SignatureVerifier
}

type Reconciler struct {
	backend  Backend
	ledger   Ledger
	queue    Queue
	notifier StatusNotifier
	metrics  metrics.Recorder
	cfg      Config
	log      *zap.Logger
}

func NewReconciler(backend Backend, ledger Ledger, queue Queue, notifier StatusNotifier, rec metrics.Recorder, cfg Config, log *zap.Logger) *Reconciler {
	if cfg.MaxDeferredAttempts <= 0 {
		cfg.MaxDeferredAttempts = 10
	}
	return &Reconciler{backend: backend, ledger: ledger, queue: queue, notifier: notifier, metrics: rec, cfg: cfg, log: log}
}

// Reconcile applies one gateway callback. A replay with the same verdict is
// a no-op; a contradicting one returns a *orders.ConflictError and leaves
// the recorded verdict alone. When the backend is unreachable the result is
// provisional and the error is orders.ErrGatewayAmbiguous.
func (r *Reconciler) Reconcile(ctx context.Context, cb Callback) (Result, error) {
	if r.cfg.Verifier == nil || !r.cfg.Verifier.Verify(cb.Raw) {
		return Result{}, orders.ErrInvalidSignature
	}
	orderID, _, err := orders.ParseTxnRef(cb.TxnRef)
	if err != nil {
		return Result{}, err
	}
	log := r.log.With(zap.String("txn_ref", cb.TxnRef), zap.Int64("order_id", orderID), zap.String("response_code", cb.ResponseCode))

	existing, err := r.ledger.Get(ctx, cb.TxnRef)
	if err != nil {
		return Result{}, orders.Unavailable("ledger", err)
	}
	if existing != nil && existing.State == idempotency.StateFinal {
		return r.replay(ctx, *existing, cb)
	}

	verdict, err := r.finalize(ctx, cb.Raw)
	var cerr *orders.ConflictError
	switch {
	case err == nil:
		return r.settle(ctx, log, cb, orderID, verdict, existing)
	case errors.As(err, &cerr):
		return r.conflict(ctx, log, cb.TxnRef, orderID, cb.ResponseCode, cerr, existing), cerr
	case orders.IsBusiness(err):
		return Result{}, err
	}

	// backend unreachable: keep the optimistic reading but do not commit to it
	provisional := LocalVerdict(cb.ResponseCode)
	log.Warn("backend unreachable, deferring", zap.Error(err))
	if existing == nil {
		if _, lerr := r.ledger.CreateIfNotExists(ctx, idempotency.Record{
			TxnRef:       cb.TxnRef,
			OrderID:      orderID,
			Verdict:      provisional,
			State:        idempotency.StateDeferred,
			ResponseCode: cb.ResponseCode,
			Params:       flatten(cb.Raw),
		}); lerr != nil {
			return Result{}, orders.Unavailable("ledger", lerr)
		}
		if qerr := r.queue.SendJSON(ctx, DeferredMessage{TxnRef: cb.TxnRef, OrderID: orderID},
			map[string]string{"kind": "deferred", "order_id": strconv.FormatInt(orderID, 10)}); qerr != nil {
			log.Error("enqueue deferred", zap.Error(qerr))
		}
		r.metrics.Count(ctx, metrics.PaymentDeferred, map[string]string{"ResponseCode": cb.ResponseCode})
	}

	state := orders.StatusDeferred
	outcome := OutcomeDeferred
	if existing != nil && existing.State == idempotency.StateManualReview {
		state, outcome = orders.StatusManualReview, OutcomeManualReview
	}
	r.notifier.Resolve(orderID, state)
	return Result{
		TxnRef:       cb.TxnRef,
		OrderID:      orderID,
		Verdict:      provisional,
		Outcome:      outcome,
		ResponseCode: cb.ResponseCode,
		Message:      Message(cb.ResponseCode),
		Provisional:  true,
	}, fmt.Errorf("txn %s: %w", cb.TxnRef, orders.ErrGatewayAmbiguous)
}

// replay answers a callback for an already settled txnRef.
func (r *Reconciler) replay(ctx context.Context, rec idempotency.Record, cb Callback) (Result, error) {
	res := Result{
		TxnRef:       rec.TxnRef,
		OrderID:      rec.OrderID,
		Verdict:      rec.Verdict,
		Outcome:      OutcomeDuplicate,
		ResponseCode: rec.ResponseCode,
		Message:      messageFor(rec.ResponseCode, rec.Verdict),
	}
	incoming := LocalVerdict(cb.ResponseCode)
	if cb.ResponseCode == rec.ResponseCode || incoming == rec.Verdict {
		// a terminal that missed the first notification catches up here
		r.notifier.Resolve(rec.OrderID, orders.StatusFor(rec.Verdict))
		return res, nil
	}

	cerr := &orders.ConflictError{TxnRef: rec.TxnRef, Existing: rec.Verdict, Incoming: incoming}
	r.log.Error("reconciliation conflict", zap.String("txn_ref", rec.TxnRef), zap.Int64("order_id", rec.OrderID),
		zap.String("recorded", rec.ResponseCode), zap.String("response_code", cb.ResponseCode))
	if err := r.ledger.FlagConflict(ctx, rec.TxnRef, cerr.Error()); err != nil {
		r.log.Error("flag conflict", zap.String("txn_ref", rec.TxnRef), zap.Error(err))
	}
	r.metrics.Count(ctx, metrics.ReconciliationConflict, map[string]string{"ResponseCode": cb.ResponseCode})
	return res, cerr
}

// conflict records a callback the backend refused because the order had
// already settled the other way (cancelled while the customer was paying).
// The ledger keeps the backend's verdict and is flagged for a human.
func (r *Reconciler) conflict(ctx context.Context, log *zap.Logger, txnRef string, orderID int64, code string, cerr *orders.ConflictError, existing *idempotency.Record) Result {
	if existing != nil {
		if err := r.ledger.Finalize(ctx, txnRef, cerr.Existing, cerr.Error()); err != nil && !errors.Is(err, idempotency.ErrConditionFailed) {
			log.Error("finalize ledger", zap.Error(err))
		}
	} else if _, err := r.ledger.CreateIfNotExists(ctx, idempotency.Record{
		TxnRef:  txnRef,
		OrderID: orderID,
		Verdict: cerr.Existing,
		State:   idempotency.StateFinal,
		Note:    cerr.Error(),
	}); err != nil {
		log.Error("record ledger", zap.Error(err))
	}
	if err := r.ledger.FlagConflict(ctx, txnRef, cerr.Error()); err != nil {
		log.Error("flag conflict", zap.Error(err))
	}
	r.metrics.Count(ctx, metrics.ReconciliationConflict, map[string]string{"ResponseCode": code})
	log.Error("reconciliation conflict", zap.String("recorded", string(cerr.Existing)), zap.String("incoming", string(cerr.Incoming)))
	res := settledResult(txnRef, orderID, code, cerr.Existing)
	res.Outcome = OutcomeDuplicate
	return res
}

// settle records the backend's verdict and tells the terminals.
func (r *Reconciler) settle(ctx context.Context, log *zap.Logger, cb Callback, orderID int64, verdict orders.Verdict, existing *idempotency.Record) (Result, error) {
	if existing != nil {
		if err := r.ledger.Finalize(ctx, cb.TxnRef, verdict, "settled by callback replay"); err != nil && !errors.Is(err, idempotency.ErrConditionFailed) {
			log.Error("finalize ledger", zap.Error(err))
		}
	} else {
		created, err := r.ledger.CreateIfNotExists(ctx, idempotency.Record{
			TxnRef:       cb.TxnRef,
			OrderID:      orderID,
			Verdict:      verdict,
			State:        idempotency.StateFinal,
			ResponseCode: cb.ResponseCode,
		})
		switch {
		case err != nil:
			// the backend transition is the commit point; the ledger only dedupes
			log.Error("record ledger", zap.Error(err))
		case !created:
			// a concurrent delivery of the same callback won
			if rec, gerr := r.ledger.Get(ctx, cb.TxnRef); gerr == nil && rec != nil && rec.State == idempotency.StateFinal {
				return r.replay(ctx, *rec, cb)
			}
		}
	}
	r.notifier.Resolve(orderID, orders.StatusFor(verdict))
	r.count(ctx, verdict, cb.ResponseCode)
	log.Info("payment reconciled", zap.String("verdict", string(verdict)))
	return settledResult(cb.TxnRef, orderID, cb.ResponseCode, verdict), nil
}

func settledResult(txnRef string, orderID int64, code string, v orders.Verdict) Result {
	outcome := OutcomeFailed
	if v == orders.VerdictSuccess {
		outcome = OutcomePaid
	}
	return Result{
		TxnRef:       txnRef,
		OrderID:      orderID,
		Verdict:      v,
		Outcome:      outcome,
		ResponseCode: code,
		Message:      messageFor(code, v),
	}
}

func (r *Reconciler) count(ctx context.Context, v orders.Verdict, code string) {
	name := metrics.PaymentFailed
	if v == orders.VerdictSuccess {
		name = metrics.PaymentSucceeded
	}
	r.metrics.Count(ctx, name, map[string]string{"ResponseCode": code})
}

// finalize calls the backend under the retry policy. Non-business failures
// come back unwrapped so the caller can tell them apart.
func (r *Reconciler) finalize(ctx context.Context, params url.Values) (orders.Verdict, error) {
	var verdict orders.Verdict
	err := retry.Do(ctx, r.cfg.Policy, func() error {
		var err error
		verdict, err = r.backend.FinalizePayment(ctx, params)
		if err != nil && orders.IsBusiness(err) {
			return retry.Permanent(err)
		}
		return err
	})
	return verdict, err
}

// Redrive retries a DEFERRED entry. It returns orders.ErrBackendUnavailable
// while the backend is still down and the attempt budget is not spent; the
// entry moves to MANUAL_REVIEW once it is.
func (r *Reconciler) Redrive(ctx context.Context, txnRef string) (Result, error) {
	rec, err := r.ledger.Get(ctx, txnRef)
	if err != nil {
		return Result{}, orders.Unavailable("ledger", err)
	}
	if rec == nil {
		return Result{}, fmt.Errorf("ledger entry %s: %w", txnRef, orders.ErrOrderNotFound)
	}
	switch rec.State {
	case idempotency.StateFinal:
		return settledResult(rec.TxnRef, rec.OrderID, rec.ResponseCode, rec.Verdict), nil
	case idempotency.StateManualReview:
		return r.pendingResult(*rec, OutcomeManualReview), nil
	}

	log := r.log.With(zap.String("txn_ref", txnRef), zap.Int64("order_id", rec.OrderID))
	attempts, err := r.ledger.IncrementAttempts(ctx, txnRef)
	if errors.Is(err, idempotency.ErrConditionFailed) {
		// settled or parked between Get and here
		return r.Redrive(ctx, txnRef)
	}
	if err != nil {
		return Result{}, orders.Unavailable("ledger", err)
	}

	verdict, err := r.finalize(ctx, unflatten(rec.Params))
	if err == nil {
		if ferr := r.ledger.Finalize(ctx, txnRef, verdict, fmt.Sprintf("settled on redrive %d", attempts)); ferr != nil && !errors.Is(ferr, idempotency.ErrConditionFailed) {
			log.Error("finalize ledger", zap.Error(ferr))
		}
		r.notifier.Resolve(rec.OrderID, orders.StatusFor(verdict))
		r.count(ctx, verdict, rec.ResponseCode)
		log.Info("deferred payment reconciled", zap.String("verdict", string(verdict)), zap.Int("attempt", attempts))
		return settledResult(txnRef, rec.OrderID, rec.ResponseCode, verdict), nil
	}

	var cerr *orders.ConflictError
	if errors.As(err, &cerr) {
		return r.conflict(ctx, log, txnRef, rec.OrderID, rec.ResponseCode, cerr, rec), cerr
	}
	if !orders.IsBusiness(err) && attempts < r.cfg.MaxDeferredAttempts {
		log.Warn("backend still unreachable", zap.Int("attempt", attempts), zap.Error(err))
		return r.pendingResult(*rec, OutcomeDeferred), orders.Unavailable("redrive "+txnRef, err)
	}

	// out of attempts, or the backend refuses the callback: needs a human
	note := fmt.Sprintf("attempt %d: %v", attempts, err)
	if merr := r.ledger.MarkManualReview(ctx, txnRef, note); merr != nil && !errors.Is(merr, idempotency.ErrConditionFailed) {
		return Result{}, orders.Unavailable("ledger", merr)
	}
	r.notifier.Resolve(rec.OrderID, orders.StatusManualReview)
	r.metrics.Count(ctx, metrics.ManualReview, map[string]string{"ResponseCode": rec.ResponseCode})
	log.Error("deferred payment needs manual review", zap.Int("attempt", attempts), zap.Error(err))
	return r.pendingResult(*rec, OutcomeManualReview), nil
}

func (r *Reconciler) pendingResult(rec idempotency.Record, outcome Outcome) Result {
	return Result{
		TxnRef:       rec.TxnRef,
		OrderID:      rec.OrderID,
		Verdict:      rec.Verdict,
		Outcome:      outcome,
		ResponseCode: rec.ResponseCode,
		Message:      Message(rec.ResponseCode),
		Provisional:  true,
	}
}

// Override settles a DEFERRED or MANUAL_REVIEW entry by hand. A settled entry
// is never overwritten.
func (r *Reconciler) Override(ctx context.Context, txnRef string, verdict orders.Verdict, actorID, note string) (Result, error) {
	if verdict != orders.VerdictSuccess && verdict != orders.VerdictFailed {
		return Result{}, orders.Invalid("verdict", "must be success or failed")
	}
	if actorID == "" {
		return Result{}, orders.Invalid("actorId", "required")
	}
	rec, err := r.ledger.Get(ctx, txnRef)
	if err != nil {
		return Result{}, orders.Unavailable("ledger", err)
	}
	if rec == nil {
		return Result{}, fmt.Errorf("ledger entry %s: %w", txnRef, orders.ErrOrderNotFound)
	}
	if rec.State == idempotency.StateFinal {
		// settled elsewhere (redrive, a late callback); the terminal may still hold it locked
		r.notifier.Resolve(rec.OrderID, orders.StatusFor(rec.Verdict))
		if rec.Verdict == verdict {
			res := settledResult(rec.TxnRef, rec.OrderID, rec.ResponseCode, rec.Verdict)
			res.Outcome = OutcomeDuplicate
			return res, nil
		}
		return Result{}, &orders.ConflictError{TxnRef: txnRef, Existing: rec.Verdict, Incoming: verdict}
	}

	to := orders.StatusFor(verdict)
	audit := fmt.Sprintf("override by %s: %s", actorID, note)
	err = retry.Do(ctx, r.cfg.Policy, func() error {
		_, err := r.backend.ResolveManually(ctx, rec.OrderID, to, audit)
		if err != nil && orders.IsBusiness(err) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		if orders.IsBusiness(err) {
			return Result{}, err
		}
		return Result{}, orders.Unavailable("override", err)
	}
	if err := r.ledger.Finalize(ctx, txnRef, verdict, audit); err != nil && !errors.Is(err, idempotency.ErrConditionFailed) {
		r.log.Error("finalize ledger", zap.String("txn_ref", txnRef), zap.Error(err))
	}
	r.notifier.Resolve(rec.OrderID, to)
	r.count(ctx, verdict, rec.ResponseCode)
	r.log.Warn("payment overridden", zap.String("txn_ref", txnRef), zap.Int64("order_id", rec.OrderID),
		zap.String("verdict", string(verdict)), zap.String("actor_id", actorID))
	return settledResult(txnRef, rec.OrderID, rec.ResponseCode, verdict), nil
}
