package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/pos-orderflow/internal/aws"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

// Store is the reconciliation ledger. Every gateway txnRef gets at most one
// record, created with a conditional put.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// ttlWindow: how long settled entries are kept (e.g., 720*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// ErrConditionFailed indicates the entry was not in the expected state.
var ErrConditionFailed = errors.New("conditional check failed")

func isConditionFailed(err error) bool {
	var sc smithy.APIError
	return errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException"
}

func (s *Store) key(txnRef string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"txn_ref": &types.AttributeValueMemberS{Value: txnRef},
	}
}

// CreateIfNotExists stores rec unless an entry for rec.TxnRef exists.
// Returns (created=false, nil) when the entry already exists (caller should Get to inspect).
func (s *Store) CreateIfNotExists(ctx context.Context, rec Record) (bool, error) {
	now := s.nowFunc().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.ttlWindow).Unix()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(txn_ref)"),
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a ledger entry. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, txnRef string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            s.key(txnRef),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// Finalize settles a pending entry with the backend's verdict. Returns
// ErrConditionFailed when the entry is already FINAL or missing.
func (s *Store) Finalize(ctx context.Context, txnRef string, verdict orders.Verdict, note string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(txnRef),
		UpdateExpression:    aws.String("SET #st = :final, verdict = :v, note = :n, updated_at = :ua, expires_at = :exp"),
		ConditionExpression: aws.String("#st IN (:deferred, :review)"),
		ExpressionAttributeNames: map[string]string{
			"#st": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":final":    &types.AttributeValueMemberS{Value: string(StateFinal)},
			":deferred": &types.AttributeValueMemberS{Value: string(StateDeferred)},
			":review":   &types.AttributeValueMemberS{Value: string(StateManualReview)},
			":v":        &types.AttributeValueMemberS{Value: string(verdict)},
			":n":        &types.AttributeValueMemberS{Value: note},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":exp":      &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item (finalize): %w", err)
	}
	return nil
}

// IncrementAttempts bumps the redrive counter of a DEFERRED entry and
// returns the new count.
func (s *Store) IncrementAttempts(ctx context.Context, txnRef string) (int, error) {
	now := s.nowFunc().UTC()
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(txnRef),
		UpdateExpression:    aws.String("SET updated_at = :ua ADD attempts :one"),
		ConditionExpression: aws.String("#st = :deferred"),
		ExpressionAttributeNames: map[string]string{
			"#st": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":deferred": &types.AttributeValueMemberS{Value: string(StateDeferred)},
			":one":      &types.AttributeValueMemberN{Value: "1"},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return 0, ErrConditionFailed
		}
		return 0, fmt.Errorf("update item (attempts): %w", err)
	}
	var got struct {
		Attempts int `dynamodbav:"attempts"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &got); err != nil {
		return 0, fmt.Errorf("unmarshal attempts: %w", err)
	}
	return got.Attempts, nil
}

// MarkManualReview parks a DEFERRED entry for an operator.
func (s *Store) MarkManualReview(ctx context.Context, txnRef, note string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(txnRef),
		UpdateExpression:    aws.String("SET #st = :review, note = :n, updated_at = :ua"),
		ConditionExpression: aws.String("#st = :deferred"),
		ExpressionAttributeNames: map[string]string{
			"#st": "state",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":review":   &types.AttributeValueMemberS{Value: string(StateManualReview)},
			":deferred": &types.AttributeValueMemberS{Value: string(StateDeferred)},
			":n":        &types.AttributeValueMemberS{Value: note},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item (manual review): %w", err)
	}
	return nil
}

// FlagConflict counts a callback that contradicted the recorded verdict.
func (s *Store) FlagConflict(ctx context.Context, txnRef, note string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 s.key(txnRef),
		UpdateExpression:    aws.String("SET note = :n, updated_at = :ua ADD conflicts :one"),
		ConditionExpression: aws.String("attribute_exists(txn_ref)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":n":   &types.AttributeValueMemberS{Value: note},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrConditionFailed
		}
		return fmt.Errorf("update item (conflict): %w", err)
	}
	return nil
}
