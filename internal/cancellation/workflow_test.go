package cancellation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/imrishuroy/pos-orderflow/internal/aws"
	"github.com/imrishuroy/pos-orderflow/internal/aws/awstest"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
	"github.com/imrishuroy/pos-orderflow/internal/retry"
)

type fakeBackend struct {
	calls int
	err   error
	lines []orders.OrderLine
	got   orders.CancellationRecord
}

func (f *fakeBackend) apply(id int64, rec orders.CancellationRecord, to orders.Status) (orders.DraftOrder, error) {
	f.calls++
	if f.err != nil {
		return orders.DraftOrder{}, f.err
	}
	f.got = rec
	return orders.DraftOrder{ID: id, Status: to, Lines: f.lines, Cancellation: &rec}, nil
}

func (f *fakeBackend) Cancel(_ context.Context, id int64, rec orders.CancellationRecord) (orders.DraftOrder, error) {
	return f.apply(id, rec, orders.StatusCancelled)
}

func (f *fakeBackend) MarkFailedDelivery(_ context.Context, id int64, rec orders.CancellationRecord) (orders.DraftOrder, error) {
	return f.apply(id, rec, orders.StatusFailedDelivery)
}

var fastRetry = retry.Policy{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxElapsed: time.Second}

func newWorkflow(b *fakeBackend, q *awstest.SQS) *Workflow {
	inv := NewSQSInventory(aws.NewPublisher(q, "https://sqs.local/restock"))
	return NewWorkflow(b, inv, fastRetry, zap.NewNop())
}

var lines = []orders.OrderLine{{ProductDetailID: 11, SKU: "W-11", Quantity: 2, Price: 500000}}

func TestBuildRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec, err := BuildRecord(orders.KindCancel, Request{ReasonCode: "DUPLICATE_ORDER", Note: "same as #41", ActorID: "staff-1"}, now)
	require.NoError(t, err)
	assert.Equal(t, "Đơn hàng bị trùng", rec.Reason)
	assert.Equal(t, "same as #41", rec.Note, "note kept for audit")
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, now, rec.Timestamp)

	rec, err = BuildRecord(orders.KindCancel, Request{ReasonCode: "OTHER", Note: "  khách đổi ý ", ActorID: "staff-1"}, now)
	require.NoError(t, err)
	assert.Equal(t, "  khách đổi ý ", rec.Reason, "OTHER note stored verbatim")

	_, err = BuildRecord(orders.KindCancel, Request{ReasonCode: "OTHER", Note: "   ", ActorID: "staff-1"}, now)
	assert.ErrorIs(t, err, orders.ErrValidation)

	// reason sets do not mix
	_, err = BuildRecord(orders.KindCancel, Request{ReasonCode: "WRONG_ADDRESS", ActorID: "staff-1"}, now)
	assert.ErrorIs(t, err, orders.ErrValidation)
	_, err = BuildRecord(orders.KindFailedDelivery, Request{ReasonCode: "SUSPECTED_FRAUD", ActorID: "staff-1"}, now)
	assert.ErrorIs(t, err, orders.ErrValidation)

	rec, err = BuildRecord(orders.KindFailedDelivery, Request{ReasonCode: "OUT_OF_AREA", ActorID: "staff-1"}, now)
	require.NoError(t, err)
	assert.Equal(t, "Ngoài khu vực giao hàng", rec.Reason)

	_, err = BuildRecord(orders.KindCancel, Request{ReasonCode: "CUSTOMER_REQUEST"}, now)
	assert.ErrorIs(t, err, orders.ErrValidation, "actor is required")
}

func TestReasonSets(t *testing.T) {
	for _, r := range CancelReasons() {
		assert.True(t, r.Valid())
		assert.NotEmpty(t, r.Label())
	}
	for _, r := range DeliveryFailureReasons() {
		assert.True(t, r.Valid())
		assert.NotEmpty(t, r.Label())
	}
	assert.False(t, CancelReason("cancelled").Valid())
}

func TestWorkflow_CancelRestocks(t *testing.T) {
	b := &fakeBackend{lines: lines}
	q := &awstest.SQS{}
	w := newWorkflow(b, q)

	res, err := w.Cancel(context.Background(), 42, Request{ReasonCode: "CUSTOMER_REQUEST", ActorID: "staff-1"})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, res.Status)
	assert.True(t, res.Restocked)
	assert.NoError(t, res.RestockErr)
	assert.Equal(t, "Khách hàng yêu cầu hủy", b.got.Reason)

	require.Len(t, q.Bodies(), 1)
	var msg RestockMessage
	require.NoError(t, json.Unmarshal([]byte(q.Bodies()[0]), &msg))
	assert.Equal(t, int64(42), msg.OrderID)
	assert.Equal(t, res.Record.ID, msg.CancellationID)
	assert.Equal(t, []RestockLine{{ProductDetailID: 11, SKU: "W-11", Quantity: 2}}, msg.Lines)
}

func TestWorkflow_RestockFailureIsSurfacedNotFatal(t *testing.T) {
	b := &fakeBackend{lines: lines}
	q := &awstest.SQS{Err: errors.New("queue down")}
	w := newWorkflow(b, q)

	res, err := w.FailDelivery(context.Background(), 42, Request{ReasonCode: "CANNOT_CONTACT", ActorID: "driver-7"})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusFailedDelivery, res.Status)
	assert.False(t, res.Restocked)
	assert.Error(t, res.RestockErr)
}

func TestWorkflow_EmptyOrderSkipsRestock(t *testing.T) {
	q := &awstest.SQS{}
	w := newWorkflow(&fakeBackend{}, q)

	res, err := w.Cancel(context.Background(), 42, Request{ReasonCode: "DUPLICATE_ORDER", ActorID: "staff-1"})
	require.NoError(t, err)
	assert.False(t, res.Restocked)
	assert.NoError(t, res.RestockErr)
	assert.Empty(t, q.Bodies())
}

func TestWorkflow_Errors(t *testing.T) {
	t.Run("validation never reaches backend", func(t *testing.T) {
		b := &fakeBackend{}
		_, err := newWorkflow(b, &awstest.SQS{}).Cancel(context.Background(), 42, Request{ReasonCode: "OTHER", ActorID: "s"})
		assert.ErrorIs(t, err, orders.ErrValidation)
		assert.Equal(t, 0, b.calls)
	})
	t.Run("invalid transition is not retried", func(t *testing.T) {
		b := &fakeBackend{err: &orders.TransitionError{OrderID: 42, From: orders.StatusDelivered, To: orders.StatusCancelled}}
		_, err := newWorkflow(b, &awstest.SQS{}).Cancel(context.Background(), 42, Request{ReasonCode: "SYSTEM_ERROR", ActorID: "s"})
		assert.ErrorIs(t, err, orders.ErrInvalidTransition)
		assert.Equal(t, 1, b.calls)
	})
	t.Run("backend down", func(t *testing.T) {
		b := &fakeBackend{err: errors.New("dial tcp: timeout")}
		_, err := newWorkflow(b, &awstest.SQS{}).Cancel(context.Background(), 42, Request{ReasonCode: "SYSTEM_ERROR", ActorID: "s"})
		assert.ErrorIs(t, err, orders.ErrBackendUnavailable)
		assert.Equal(t, 2, b.calls)
	})
}
