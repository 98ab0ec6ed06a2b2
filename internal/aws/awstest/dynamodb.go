// Package awstest provides in-memory fakes of the AWS APIs used by the
// stores. They understand only the expression shapes this repository writes.
package awstest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

type table struct {
	keyAttr string
	items   map[string]map[string]types.AttributeValue
}

// DynamoDB is a minimal in-memory DynamoDB. Tables must be registered with
// CreateTable. Supported expressions:
//
//	conditions: attribute_not_exists(a), attribute_exists(a), contains(a, :v), a = :v, a IN (:v1, :v2), joined by AND
//	updates:    SET a = :v, b = :w ADD c :n
type DynamoDB struct {
	mu     sync.Mutex
	tables map[string]*table

	// Err, when set, is returned from every call.
	Err error

	Calls map[string]int
}

func NewDynamoDB() *DynamoDB {
	return &DynamoDB{tables: map[string]*table{}, Calls: map[string]int{}}
}

// CreateTable registers a table keyed by a single hash attribute.
func (d *DynamoDB) CreateTable(name, keyAttr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tables[name] = &table{keyAttr: keyAttr, items: map[string]map[string]types.AttributeValue{}}
}

// Item returns a copy of the stored item with the given key value.
func (d *DynamoDB) Item(tableName, key string) map[string]types.AttributeValue {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tables[tableName]
	if !ok {
		return nil
	}
	it, ok := t.items[key]
	if !ok {
		return nil
	}
	return copyItem(it)
}

// Len returns the number of items stored in a table.
func (d *DynamoDB) Len(tableName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tables[tableName]; ok {
		return len(t.items)
	}
	return 0
}

func (d *DynamoDB) table(name *string) (*table, error) {
	if name == nil {
		return nil, errors.New("missing table name")
	}
	t, ok := d.tables[*name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: name}
	}
	return t, nil
}

func (d *DynamoDB) PutItem(ctx context.Context, in *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["PutItem"]++
	if d.Err != nil {
		return nil, d.Err
	}
	t, err := d.table(in.TableName)
	if err != nil {
		return nil, err
	}
	key, err := keyString(in.Item[t.keyAttr])
	if err != nil {
		return nil, err
	}
	existing := t.items[key]
	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	t.items[key] = copyItem(in.Item)
	return &dyn.PutItemOutput{}, nil
}

func (d *DynamoDB) GetItem(ctx context.Context, in *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["GetItem"]++
	if d.Err != nil {
		return nil, d.Err
	}
	t, err := d.table(in.TableName)
	if err != nil {
		return nil, err
	}
	key, err := keyString(in.Key[t.keyAttr])
	if err != nil {
		return nil, err
	}
	item, ok := t.items[key]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: copyItem(item)}, nil
}

func (d *DynamoDB) UpdateItem(ctx context.Context, in *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["UpdateItem"]++
	if d.Err != nil {
		return nil, d.Err
	}
	t, err := d.table(in.TableName)
	if err != nil {
		return nil, err
	}
	keyAttr := in.Key[t.keyAttr]
	key, err := keyString(keyAttr)
	if err != nil {
		return nil, err
	}
	existing := t.items[key]
	if in.ConditionExpression != nil {
		ok, err := evalCondition(*in.ConditionExpression, existing, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}

	item := copyItem(existing)
	if item == nil {
		item = map[string]types.AttributeValue{t.keyAttr: keyAttr}
	}
	if in.UpdateExpression != nil {
		if err := applyUpdate(*in.UpdateExpression, item, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	t.items[key] = item
	return &dyn.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

func (d *DynamoDB) Scan(ctx context.Context, in *dyn.ScanInput, optFns ...func(*dyn.Options)) (*dyn.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls["Scan"]++
	if d.Err != nil {
		return nil, d.Err
	}
	t, err := d.table(in.TableName)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := 0
	if in.ExclusiveStartKey != nil {
		after, err := keyString(in.ExclusiveStartKey[t.keyAttr])
		if err != nil {
			return nil, err
		}
		start = sort.SearchStrings(keys, after)
		if start < len(keys) && keys[start] == after {
			start++
		}
	}

	limit := len(keys)
	if in.Limit != nil && int(*in.Limit) < limit {
		limit = int(*in.Limit)
	}

	out := &dyn.ScanOutput{}
	examined := 0
	i := start
	for ; i < len(keys) && examined < limit; i++ {
		examined++
		item := t.items[keys[i]]
		keep := true
		if in.FilterExpression != nil {
			if keep, err = evalCondition(*in.FilterExpression, item, in.ExpressionAttributeNames, in.ExpressionAttributeValues); err != nil {
				return nil, err
			}
		}
		if keep {
			out.Items = append(out.Items, copyItem(item))
		}
	}
	out.ScannedCount = int32(examined)
	out.Count = int32(len(out.Items))
	if i < len(keys) && examined > 0 {
		out.LastEvaluatedKey = map[string]types.AttributeValue{t.keyAttr: t.items[keys[i-1]][t.keyAttr]}
	}
	return out, nil
}

func keyString(av types.AttributeValue) (string, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		// zero-pad so numeric keys scan in numeric order
		n, err := strconv.ParseInt(v.Value, 10, 64)
		if err != nil {
			return v.Value, nil
		}
		return fmt.Sprintf("%020d", n), nil
	default:
		return "", errors.New("awstest: missing or unsupported key attribute")
	}
}

func copyItem(in map[string]types.AttributeValue) map[string]types.AttributeValue {
	if in == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func resolveName(name string, names map[string]string) string {
	if strings.HasPrefix(name, "#") {
		if n, ok := names[name]; ok {
			return n
		}
	}
	return name
}

func evalCondition(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	for _, atom := range strings.Split(expr, " AND ") {
		atom = strings.TrimSpace(atom)
		ok, err := evalAtom(atom, item, names, values)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func evalAtom(atom string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) (bool, error) {
	switch {
	case strings.HasPrefix(atom, "attribute_not_exists(") && strings.HasSuffix(atom, ")"):
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(atom, "attribute_not_exists("), ")"), names)
		_, ok := item[attr]
		return !ok, nil
	case strings.HasPrefix(atom, "attribute_exists(") && strings.HasSuffix(atom, ")"):
		attr := resolveName(strings.TrimSuffix(strings.TrimPrefix(atom, "attribute_exists("), ")"), names)
		_, ok := item[attr]
		return ok, nil
	case strings.HasPrefix(atom, "contains(") && strings.HasSuffix(atom, ")"):
		args := strings.SplitN(strings.TrimSuffix(strings.TrimPrefix(atom, "contains("), ")"), ",", 2)
		if len(args) != 2 {
			return false, fmt.Errorf("awstest: malformed %q", atom)
		}
		cur, ok := item[resolveName(strings.TrimSpace(args[0]), names)].(*types.AttributeValueMemberS)
		want, _ := values[strings.TrimSpace(args[1])].(*types.AttributeValueMemberS)
		return ok && want != nil && strings.Contains(cur.Value, want.Value), nil
	case strings.Contains(atom, " IN ("):
		parts := strings.SplitN(atom, " IN (", 2)
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		cur, ok := item[attr]
		if !ok {
			return false, nil
		}
		for _, ph := range strings.Split(strings.TrimSuffix(parts[1], ")"), ",") {
			if equalAV(cur, values[strings.TrimSpace(ph)]) {
				return true, nil
			}
		}
		return false, nil
	case strings.Contains(atom, " = "):
		parts := strings.SplitN(atom, " = ", 2)
		attr := resolveName(strings.TrimSpace(parts[0]), names)
		cur, ok := item[attr]
		if !ok {
			return false, nil
		}
		return equalAV(cur, values[strings.TrimSpace(parts[1])]), nil
	}
	return false, fmt.Errorf("awstest: unsupported condition %q", atom)
}

func equalAV(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	}
	return false
}

func applyUpdate(expr string, item map[string]types.AttributeValue, names map[string]string, values map[string]types.AttributeValue) error {
	setPart, addPart := expr, ""
	if i := strings.Index(expr, " ADD "); i >= 0 {
		setPart, addPart = expr[:i], expr[i+len(" ADD "):]
	} else if strings.HasPrefix(expr, "ADD ") {
		setPart, addPart = "", strings.TrimPrefix(expr, "ADD ")
	}

	setPart = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(setPart), "SET "))
	if setPart != "" {
		for _, assign := range strings.Split(setPart, ",") {
			kv := strings.SplitN(assign, "=", 2)
			if len(kv) != 2 {
				return fmt.Errorf("awstest: unsupported assignment %q", assign)
			}
			attr := resolveName(strings.TrimSpace(kv[0]), names)
			v, ok := values[strings.TrimSpace(kv[1])]
			if !ok {
				return fmt.Errorf("awstest: missing value %s", kv[1])
			}
			item[attr] = v
		}
	}

	for _, add := range strings.Split(addPart, ",") {
		add = strings.TrimSpace(add)
		if add == "" {
			continue
		}
		fields := strings.Fields(add)
		if len(fields) != 2 {
			return fmt.Errorf("awstest: unsupported ADD %q", add)
		}
		attr := resolveName(fields[0], names)
		inc, ok := values[fields[1]].(*types.AttributeValueMemberN)
		if !ok {
			return fmt.Errorf("awstest: ADD needs a number value")
		}
		var cur int64
		if n, ok := item[attr].(*types.AttributeValueMemberN); ok {
			cur, _ = strconv.ParseInt(n.Value, 10, 64)
		}
		delta, _ := strconv.ParseInt(inc.Value, 10, 64)
		item[attr] = &types.AttributeValueMemberN{Value: strconv.FormatInt(cur+delta, 10)}
	}
	return nil
}

// SQS records sent messages.
type SQS struct {
	mu       sync.Mutex
	Messages []*sqs.SendMessageInput
	Err      error
}

func (s *SQS) SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.Messages = append(s.Messages, in)
	return &sqs.SendMessageOutput{}, nil
}

// Bodies returns the bodies of all sent messages.
func (s *SQS) Bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.Messages))
	for _, m := range s.Messages {
		out = append(out, *m.MessageBody)
	}
	return out
}
