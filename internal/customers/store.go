// Package customers looks up active customers for cart attribution.
package customers

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/pos-orderflow/internal/aws"
	"github.com/imrishuroy/pos-orderflow/internal/orders"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

type Customer struct {
	ID          string `json:"id" dynamodbav:"customer_id"`
	FullName    string `json:"fullName" dynamodbav:"full_name"`
	Email       string `json:"email,omitempty" dynamodbav:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty" dynamodbav:"phone_number,omitempty"`
	Active      bool   `json:"active" dynamodbav:"active"`
	// SearchKey is the lowercased name, email and phone, matched by keyword.
	SearchKey string `json:"-" dynamodbav:"search_key"`
}

// Ref is the cart attribution for c.
func (c Customer) Ref() orders.CustomerRef {
	return orders.CustomerRef{ID: c.ID, FullName: c.FullName, Email: c.Email, PhoneNumber: c.PhoneNumber}
}

func searchKey(c Customer) string {
	return strings.ToLower(strings.Join([]string{c.FullName, c.Email, c.PhoneNumber}, " "))
}

type Query struct {
	Keyword  string
	PageSize int
	Cursor   string
}

// Page is one slice of results. An empty Cursor means there is nothing after it.
type Page struct {
	Items  []Customer `json:"items"`
	Cursor string     `json:"cursor,omitempty"`
}

type Store struct {
	client    aws.DynamoDBAPI
	tableName string
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Put writes c, refreshing its search key.
func (s *Store) Put(ctx context.Context, c Customer) error {
	c.SearchKey = searchKey(c)
	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return fmt.Errorf("marshal customer: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dyn.PutItemInput{TableName: &s.tableName, Item: item}); err != nil {
		return fmt.Errorf("put customer: %w", err)
	}
	return nil
}

// Search returns active customers matching q.Keyword. Scan applies the
// filter after reading, so it keeps scanning until the page is full or the
// table is exhausted.
func (s *Store) Search(ctx context.Context, q Query) (Page, error) {
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	filter := "active = :active"
	values := map[string]types.AttributeValue{
		":active": &types.AttributeValueMemberBOOL{Value: true},
	}
	if kw := strings.ToLower(strings.TrimSpace(q.Keyword)); kw != "" {
		filter += " AND contains(search_key, :kw)"
		values[":kw"] = &types.AttributeValueMemberS{Value: kw}
	}

	var startKey map[string]types.AttributeValue
	if q.Cursor != "" {
		startKey = map[string]types.AttributeValue{"customer_id": &types.AttributeValueMemberS{Value: q.Cursor}}
	}

	page := Page{Items: []Customer{}}
	for {
		limit := int32(size - len(page.Items))
		out, err := s.client.Scan(ctx, &dyn.ScanInput{
			TableName:                 &s.tableName,
			FilterExpression:          &filter,
			ExpressionAttributeValues: values,
			ExclusiveStartKey:         startKey,
			Limit:                     &limit,
		})
		if err != nil {
			return Page{}, fmt.Errorf("scan customers: %w", err)
		}
		var batch []Customer
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &batch); err != nil {
			return Page{}, fmt.Errorf("unmarshal customers: %w", err)
		}
		page.Items = append(page.Items, batch...)

		startKey = out.LastEvaluatedKey
		if len(startKey) == 0 || len(page.Items) >= size {
			break
		}
	}

	if len(startKey) > 0 {
		var last struct {
			ID string `dynamodbav:"customer_id"`
		}
		if err := attributevalue.UnmarshalMap(startKey, &last); err != nil {
			return Page{}, fmt.Errorf("unmarshal cursor: %w", err)
		}
		page.Cursor = last.ID
	}
	return page, nil
}
