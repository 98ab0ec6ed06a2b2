package session

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/aws"
	"github.com/imrishuroy/pos-orderflow/internal/aws/awstest"
	"github.com/imrishuroy/pos-orderflow/internal/cancellation"
	"github.com/imrishuroy/pos-orderflow/internal/cart"
	"github.com/imrishuroy/pos-orderflow/internal/metrics"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/retry"
)

var fastRetry = retry.Policy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxElapsed: time.Second}

type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingRecorder) Count(_ context.Context, name string, _ map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[name]++
}

type fixture struct {
	db      *awstest.DynamoDB
	sqs     *awstest.SQS
	service *orders.Service
	metrics *countingRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := awstest.NewDynamoDB()
	db.CreateTable("orders", "order_id")
	return &fixture{
		db:      db,
		sqs:     &awstest.SQS{},
		service: orders.NewService(orders.NewStore(db, "orders"), orders.NewHMACVerifier("secret"), zap.NewNop()),
		metrics: &countingRecorder{},
	}
}

func (f *fixture) session(terminal string) *Session {
	wf := cancellation.NewWorkflow(f.service,
		cancellation.NewSQSInventory(aws.NewPublisher(f.sqs, "https://sqs.local/restock")),
		fastRetry, zap.NewNop())
	return New(terminal, f.service, wf, WithRetryPolicy(fastRetry), WithMetrics(f.metrics))
}

func TestCreateOrder_AutoSelectsAndSortsNewestFirst(t *testing.T) {
	s := newFixture(t).session("pos-1")
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		o, err := s.CreateOrder(ctx)
		require.NoError(t, err)
		assert.Equal(t, orders.StatusDraft, o.Status)
		active, ok := s.Active()
		require.True(t, ok)
		assert.Equal(t, o.ID, active)
		ids = append(ids, o.ID)
	}

	list := s.Orders()
	require.Len(t, list, 3)
	assert.Equal(t, []int64{ids[2], ids[1], ids[0]}, []int64{list[0].ID, list[1].ID, list[2].ID})

	require.NoError(t, s.SelectOrder(ids[0]))
	c, err := s.Selected()
	require.NoError(t, err)
	assert.Equal(t, ids[0], c.ID())

	assert.ErrorIs(t, s.SelectOrder(999), orders.ErrOrderNotFound)
	active, _ := s.Active()
	assert.Equal(t, ids[0], active, "failed select keeps the current selection")
}

func TestCreateOrder_CapacityExceeded(t *testing.T) {
	f := newFixture(t)
	s := f.session("pos-1")
	ctx := context.Background()

	for i := 0; i < DefaultMaxDrafts; i++ {
		_, err := s.CreateOrder(ctx)
		require.NoError(t, err)
	}
	before := s.Orders()
	putsBefore := f.db.Calls["PutItem"]

	_, err := s.CreateOrder(ctx)
	assert.ErrorIs(t, err, orders.ErrCapacityExceeded)
	assert.Equal(t, before, s.Orders(), "existing drafts untouched")
	assert.Equal(t, putsBefore, f.db.Calls["PutItem"], "backend not called")
	assert.Equal(t, 1, f.metrics.counts[metrics.DraftCapacityExceeded])
}

func TestCreateOrder_ConcurrentCreatesRespectCap(t *testing.T) {
	s := newFixture(t).session("pos-1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, full int
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateOrder(context.Background())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, orders.ErrCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, DefaultMaxDrafts, ok)
	assert.Equal(t, 12-DefaultMaxDrafts, full)
	assert.Len(t, s.Orders(), DefaultMaxDrafts)
}

func TestCreateOrder_BackendDownReleasesSlot(t *testing.T) {
	f := newFixture(t)
	s := New("pos-1", f.service, nil, WithMaxDrafts(1), WithRetryPolicy(fastRetry))

	f.db.Err = errors.New("connection refused")
	_, err := s.CreateOrder(context.Background())
	assert.ErrorIs(t, err, orders.ErrBackendUnavailable)
	_, ok := s.Active()
	assert.False(t, ok)

	f.db.Err = nil
	_, err = s.CreateOrder(context.Background())
	assert.NoError(t, err)
}

func TestRemoveOrder_CancelsAndClearsSelection(t *testing.T) {
	f := newFixture(t)
	s := f.session("pos-1")
	ctx := context.Background()

	first, err := s.CreateOrder(ctx)
	require.NoError(t, err)
	o, err := s.CreateOrder(ctx)
	require.NoError(t, err)
	c, err := s.Cart(o.ID)
	require.NoError(t, err)
	require.NoError(t, c.AddItem(ctx, cart.Item{ProductDetailID: 3, SKU: "S-3", Quantity: 1, Price: 1000}))

	_, err = s.RemoveOrder(ctx, o.ID, cancellation.Request{ReasonCode: "OTHER", ActorID: "staff-1"})
	assert.ErrorIs(t, err, orders.ErrValidation)
	assert.Len(t, s.Orders(), 2)

	res, err := s.RemoveOrder(ctx, o.ID, cancellation.Request{ReasonCode: "CUSTOMER_REQUEST", ActorID: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, res.Status)
	assert.True(t, res.Restocked)
	assert.Len(t, f.sqs.Bodies(), 1)

	_, ok := s.Active()
	assert.False(t, ok)
	_, err = s.Selected()
	assert.ErrorIs(t, err, orders.ErrNoActiveOrder)
	require.Len(t, s.Orders(), 1)
	assert.Equal(t, first.ID, s.Orders()[0].ID)

	_, err = s.RemoveOrder(ctx, o.ID, cancellation.Request{ReasonCode: "CUSTOMER_REQUEST", ActorID: "staff-1"})
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestCheckoutAndResolve(t *testing.T) {
	f := newFixture(t)
	s := f.session("pos-1")
	ctx := context.Background()

	o, err := s.CreateOrder(ctx)
	require.NoError(t, err)
	c, _ := s.Cart(o.ID)
	require.NoError(t, c.AddItem(ctx, cart.Item{ProductDetailID: 3, Quantity: 2, Price: 1000}))

	locked, err := s.Checkout(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPendingPayment, locked.Status)
	assert.Equal(t, int64(2000), locked.TotalAmount)
	assert.ErrorIs(t, c.SetLineQuantity(ctx, 3, 1), orders.ErrOrderLocked)

	assert.True(t, s.Resolve(o.ID, orders.StatusDeferred))
	assert.Equal(t, orders.StatusDeferred, c.Status())
	assert.ErrorIs(t, c.SetLineQuantity(ctx, 3, 1), orders.ErrOrderLocked)

	// backend settles the attempt as failed, then the terminal hears about it
	cb := url.Values{}
	cb.Set("vnp_TxnRef", locked.TxnRef())
	cb.Set("vnp_ResponseCode", "24")
	cb.Set("vnp_Amount", "200000")
	cb.Set("vnp_SecureHash", orders.NewHMACVerifier("secret").Sign(cb))
	verdict, err := f.service.FinalizePayment(ctx, cb)
	require.NoError(t, err)
	require.Equal(t, orders.VerdictFailed, verdict)

	assert.True(t, s.Resolve(o.ID, orders.StatusPaymentFailed))
	assert.NoError(t, c.SetLineQuantity(ctx, 3, 1), "failed payment unlocks the cart")

	assert.True(t, s.Resolve(o.ID, orders.StatusPaid))
	assert.Empty(t, s.Orders())
	assert.False(t, s.Resolve(o.ID, orders.StatusPaid))
}

func TestRegistry_IsolatesTerminals(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(f.session)
	ctx := context.Background()

	a, b := r.Session("pos-1"), r.Session("pos-2")
	assert.Same(t, a, r.Session("pos-1"))
	assert.NotSame(t, a, b)

	oa, err := a.CreateOrder(ctx)
	require.NoError(t, err)
	_, err = b.CreateOrder(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, b.SelectOrder(oa.ID), orders.ErrOrderNotFound)

	r.Resolve(oa.ID, orders.StatusCancelled)
	assert.Empty(t, a.Orders())
	assert.Len(t, b.Orders(), 1)
}

func signedCallback(txnRef, code, amount string) url.Values {
	cb := url.Values{}
	cb.Set("vnp_TxnRef", txnRef)
	cb.Set("vnp_ResponseCode", code)
	cb.Set("vnp_Amount", amount)
	cb.Set("vnp_SecureHash", orders.NewHMACVerifier("secret").Sign(cb))
	return cb
}

func TestCreateOrder_ReleasesDeferredOrderPaidElsewhere(t *testing.T) {
	f := newFixture(t)
	s := New("pos-1", f.service, nil, WithMaxDrafts(1), WithRetryPolicy(fastRetry), WithMetrics(f.metrics))
	ctx := context.Background()

	o, err := s.CreateOrder(ctx)
	require.NoError(t, err)
	c, _ := s.Cart(o.ID)
	require.NoError(t, c.AddItem(ctx, cart.Item{ProductDetailID: 3, Quantity: 1, Price: 1000}))
	locked, err := s.Checkout(ctx, o.ID)
	require.NoError(t, err)
	require.True(t, s.Resolve(o.ID, orders.StatusDeferred))

	_, err = s.CreateOrder(ctx)
	require.ErrorIs(t, err, orders.ErrCapacityExceeded)

	// the sweep worker settles it without telling this terminal
	verdict, err := f.service.FinalizePayment(ctx, signedCallback(locked.TxnRef(), "00", "100000"))
	require.NoError(t, err)
	require.Equal(t, orders.VerdictSuccess, verdict)

	next, err := s.CreateOrder(ctx)
	require.NoError(t, err)
	_, err = s.Cart(o.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	require.Len(t, s.Orders(), 1)
	assert.Equal(t, next.ID, s.Orders()[0].ID)
}

func TestRefresh_AppliesBackendStatus(t *testing.T) {
	f := newFixture(t)
	s := f.session("pos-1")
	ctx := context.Background()

	failed, err := s.CreateOrder(ctx)
	require.NoError(t, err)
	fc, _ := s.Cart(failed.ID)
	require.NoError(t, fc.AddItem(ctx, cart.Item{ProductDetailID: 3, Quantity: 1, Price: 1000}))
	locked, err := s.Checkout(ctx, failed.ID)
	require.NoError(t, err)
	require.True(t, s.Resolve(failed.ID, orders.StatusDeferred))

	cancelled, err := s.CreateOrder(ctx)
	require.NoError(t, err)
	kept, err := s.CreateOrder(ctx)
	require.NoError(t, err)

	_, err = f.service.FinalizePayment(ctx, signedCallback(locked.TxnRef(), "24", "100000"))
	require.NoError(t, err)
	_, err = f.service.Cancel(ctx, cancelled.ID, orders.CancellationRecord{
		Kind: orders.KindCancel, ReasonCode: "CUSTOMER_REQUEST", Reason: "x", ActorID: "staff-1"})
	require.NoError(t, err)

	s.Refresh(ctx)
	assert.Equal(t, orders.StatusPaymentFailed, fc.Status(), "failed after deferral unlocks")
	_, err = s.Cart(cancelled.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	kc, err := s.Cart(kept.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDraft, kc.Status())

	// unreachable backend leaves everything as it was
	f.db.Err = errors.New("connection refused")
	s.Refresh(ctx)
	assert.Len(t, s.Orders(), 2)
}
