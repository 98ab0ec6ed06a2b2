package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/pos-orderflow/internal/aws/awstest"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

const ledgerTable = "ledger-table"

func newTestStore(t *testing.T) (*Store, *awstest.DynamoDB) {
	t.Helper()
	db := awstest.NewDynamoDB()
	db.CreateTable(ledgerTable, "txn_ref")
	return NewStore(db, ledgerTable, 48*time.Hour), db
}

func deferred(ref string) Record {
	return Record{
		TxnRef:       ref,
		OrderID:      7,
		Verdict:      orders.VerdictSuccess,
		State:        StateDeferred,
		ResponseCode: "00",
		Params:       map[string]string{"vnp_TxnRef": ref},
	}
}

func TestCreateIfNotExists_Get(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateIfNotExists(ctx, deferred("7-1"))
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created, err = s.CreateIfNotExists(ctx, deferred("7-1"))
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, "7-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.State != StateDeferred || rec.OrderID != 7 || rec.Params["vnp_TxnRef"] != "7-1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if !rec.Pending() {
		t.Fatalf("deferred record should be pending")
	}
	if rec.ExpiresAt <= rec.CreatedAt.Unix() {
		t.Fatalf("expected TTL after creation, got %d", rec.ExpiresAt)
	}

	missing, err := s.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected (nil, nil) for missing key, got %v %v", missing, err)
	}
}

func TestFinalize_OnlyFromPending(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateIfNotExists(ctx, deferred("7-1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Finalize(ctx, "7-1", orders.VerdictFailed, "backend recovered"); err != nil {
		t.Fatalf("Finalize error: %v", err)
	}
	rec, _ := s.Get(ctx, "7-1")
	if rec.State != StateFinal || rec.Verdict != orders.VerdictFailed || rec.Note != "backend recovered" {
		t.Fatalf("unexpected record after finalize %+v", rec)
	}

	// already final
	if err := s.Finalize(ctx, "7-1", orders.VerdictSuccess, ""); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	if err := s.Finalize(ctx, "missing", orders.VerdictSuccess, ""); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed for missing entry, got %v", err)
	}
}

func TestIncrementAttempts_And_ManualReview(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.CreateIfNotExists(ctx, deferred("7-1")); err != nil {
		t.Fatal(err)
	}
	for want := 1; want <= 3; want++ {
		got, err := s.IncrementAttempts(ctx, "7-1")
		if err != nil {
			t.Fatalf("IncrementAttempts error: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d attempts, got %d", want, got)
		}
	}

	if err := s.MarkManualReview(ctx, "7-1", "gave up"); err != nil {
		t.Fatalf("MarkManualReview error: %v", err)
	}
	rec, _ := s.Get(ctx, "7-1")
	if rec.State != StateManualReview || rec.Attempts != 3 {
		t.Fatalf("unexpected record %+v", rec)
	}

	// no longer deferred
	if _, err := s.IncrementAttempts(ctx, "7-1"); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	if err := s.MarkManualReview(ctx, "7-1", ""); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed, got %v", err)
	}
	// an operator can still finalize
	if err := s.Finalize(ctx, "7-1", orders.VerdictSuccess, "checked"); err != nil {
		t.Fatalf("Finalize from review: %v", err)
	}
}

func TestFlagConflict(t *testing.T) {
	s, db := newTestStore(t)
	ctx := context.Background()

	if err := s.FlagConflict(ctx, "7-1", "x"); !errors.Is(err, ErrConditionFailed) {
		t.Fatalf("expected ErrConditionFailed for missing entry, got %v", err)
	}
	if _, err := s.CreateIfNotExists(ctx, deferred("7-1")); err != nil {
		t.Fatal(err)
	}
	_ = s.FlagConflict(ctx, "7-1", "success then failed")
	_ = s.FlagConflict(ctx, "7-1", "success then failed")

	item := db.Item(ledgerTable, "7-1")
	n, ok := item["conflicts"].(*types.AttributeValueMemberN)
	if !ok || n.Value != "2" {
		t.Fatalf("expected conflicts=2, got %#v", item["conflicts"])
	}
}

func TestStore_PropagatesClientErrors(t *testing.T) {
	s, db := newTestStore(t)
	db.Err = errors.New("throttled")

	if _, err := s.CreateIfNotExists(context.Background(), deferred("7-1")); err == nil {
		t.Fatal("expected error")
	}
	if _, err := s.Get(context.Background(), "7-1"); err == nil {
		t.Fatal("expected error")
	}
}
