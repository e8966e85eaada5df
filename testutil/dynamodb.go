// Package testutil provides in-memory stand-ins for the AWS APIs the services
// depend on. They implement only the expression forms the services emit.
package testutil

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

type Item = map[string]types.AttributeValue

type fakeTable struct {
	hashKey string
	order   []string
	items   map[string]Item
	// indexes holds the GSI names of tables made through CreateTable. Tables
	// added with AddTable leave it nil and accept any index.
	indexes map[string]bool
}

func (t *fakeTable) put(item Item) error {
	key, ok := item[t.hashKey].(*types.AttributeValueMemberS)
	if !ok || key.Value == "" {
		return &types.ResourceNotFoundException{Message: aws.String("missing key " + t.hashKey)}
	}
	if _, exists := t.items[key.Value]; !exists {
		t.order = append(t.order, key.Value)
	}
	t.items[key.Value] = copyItem(item)
	return nil
}

func (t *fakeTable) delete(key string) {
	if _, ok := t.items[key]; !ok {
		return
	}
	delete(t.items, key)
	for i, k := range t.order {
		if k == key {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *fakeTable) keyOf(key Item) (string, bool) {
	v, ok := key[t.hashKey].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return v.Value, true
}

// FakeDynamoDB is a single-hash-key, in-memory DynamoDB.
type FakeDynamoDB struct {
	mu     sync.Mutex
	tables map[string]*fakeTable

	// Unprocessed, when set, decides which write requests a BatchWriteItem
	// call leaves unapplied and reports back as unprocessed.
	Unprocessed func(table string, req types.WriteRequest) bool

	// Errors forces an operation ("Scan", "PutItem", ...) to fail.
	Errors map[string]error

	// BatchSizes records the request count of every BatchWriteItem call.
	BatchSizes []int
	Calls      []string
}

func NewFakeDynamoDB() *FakeDynamoDB {
	return &FakeDynamoDB{tables: map[string]*fakeTable{}, Errors: map[string]error{}}
}

// AddTable registers an empty table keyed by hashKey.
func (f *FakeDynamoDB) AddTable(name, hashKey string) *FakeDynamoDB {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &fakeTable{hashKey: hashKey, items: map[string]Item{}}
	return f
}

// Seed stores items directly, bypassing error injection.
func (f *FakeDynamoDB) Seed(table string, items ...Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[table]
	for _, it := range items {
		if err := t.put(it); err != nil {
			// items lacking the key are still stored so scans can return them
			synthetic := fmt.Sprintf("__nokey_%d", len(t.order))
			t.order = append(t.order, synthetic)
			t.items[synthetic] = copyItem(it)
		}
	}
}

// Items returns a copy of every item of table in insertion order.
func (f *FakeDynamoDB) Items(table string) []Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tables[table]
	if t == nil {
		return nil
	}
	out := make([]Item, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, copyItem(t.items[k]))
	}
	return out
}

// Count returns the number of items in table.
func (f *FakeDynamoDB) Count(table string) int {
	return len(f.Items(table))
}

func (f *FakeDynamoDB) enter(op, table string) (*fakeTable, error) {
	f.Calls = append(f.Calls, op)
	if err := f.Errors[op]; err != nil {
		return nil, err
	}
	t, ok := f.tables[table]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: " + table)}
	}
	return t, nil
}

func (f *FakeDynamoDB) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := aws.ToString(in.TableName)
	if _, ok := f.tables[name]; ok {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	t := &fakeTable{hashKey: aws.ToString(in.KeySchema[0].AttributeName), items: map[string]Item{}, indexes: map[string]bool{}}
	for _, gsi := range in.GlobalSecondaryIndexes {
		t.indexes[aws.ToString(gsi.IndexName)] = true
	}
	f.tables[name] = t
	return &dynamodb.CreateTableOutput{}, nil
}

func (f *FakeDynamoDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.enter("GetItem", aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	k, _ := t.keyOf(in.Key)
	item, ok := t.items[k]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *FakeDynamoDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.enter("PutItem", aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	return &dynamodb.PutItemOutput{}, t.put(in.Item)
}

// UpdateItem supports "SET a = :a, #b = :b" expressions and upserts like DynamoDB.
func (f *FakeDynamoDB) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.enter("UpdateItem", aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	k, _ := t.keyOf(in.Key)
	item, ok := t.items[k]
	if !ok {
		item = copyItem(in.Key)
	} else {
		item = copyItem(item)
	}

	expr := strings.TrimSpace(aws.ToString(in.UpdateExpression))
	if !strings.HasPrefix(strings.ToUpper(expr), "SET ") {
		return nil, fmt.Errorf("fake dynamodb: unsupported update expression %q", expr)
	}
	for _, assign := range strings.Split(expr[4:], ",") {
		name, value, err := resolveEquality(assign, in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
		item[name] = value
	}
	if err := t.put(item); err != nil {
		return nil, err
	}
	return &dynamodb.UpdateItemOutput{Attributes: copyItem(item)}, nil
}

// Query supports a single equality key condition on the table or an index.
func (f *FakeDynamoDB) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.enter("Query", aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	if index := aws.ToString(in.IndexName); index != "" && t.indexes != nil && !t.indexes[index] {
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "The table does not have the specified index: " + index}
	}
	conds, err := parseConjunction(aws.ToString(in.KeyConditionExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
	if err != nil {
		return nil, err
	}
	var out []Item
	for _, k := range t.order {
		if matches(t.items[k], conds) {
			out = append(out, copyItem(t.items[k]))
		}
	}
	return &dynamodb.QueryOutput{Items: out, Count: int32(len(out))}, nil
}

// Scan applies Limit before the filter and pages with ExclusiveStartKey, as DynamoDB does.
func (f *FakeDynamoDB) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.enter("Scan", aws.ToString(in.TableName))
	if err != nil {
		return nil, err
	}
	var conds map[string]types.AttributeValue
	if in.FilterExpression != nil {
		conds, err = parseConjunction(aws.ToString(in.FilterExpression), in.ExpressionAttributeNames, in.ExpressionAttributeValues)
		if err != nil {
			return nil, err
		}
	}

	start := 0
	if len(in.ExclusiveStartKey) > 0 {
		k, _ := t.keyOf(in.ExclusiveStartKey)
		for i, existing := range t.order {
			if existing == k {
				start = i + 1
				break
			}
		}
	}
	end := len(t.order)
	if in.Limit != nil && int(*in.Limit) < end-start {
		end = start + int(*in.Limit)
	}

	out := &dynamodb.ScanOutput{Items: []Item{}}
	for _, k := range t.order[start:end] {
		if matches(t.items[k], conds) {
			out.Items = append(out.Items, copyItem(t.items[k]))
		}
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = int32(end - start)
	if end < len(t.order) {
		out.LastEvaluatedKey = Item{t.hashKey: &types.AttributeValueMemberS{Value: t.order[end-1]}}
	}
	return out, nil
}

func (f *FakeDynamoDB) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, "BatchWriteItem")
	if err := f.Errors["BatchWriteItem"]; err != nil {
		return nil, err
	}

	total := 0
	for _, reqs := range in.RequestItems {
		total += len(reqs)
	}
	if total == 0 || total > 25 {
		return nil, fmt.Errorf("ValidationException: batch size %d outside 1..25", total)
	}
	f.BatchSizes = append(f.BatchSizes, total)

	// DynamoDB rejects the whole call when one table's requests repeat a key.
	for table, reqs := range in.RequestItems {
		t, ok := f.tables[table]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: " + table)}
		}
		seen := map[string]bool{}
		for _, req := range reqs {
			var k string
			switch {
			case req.PutRequest != nil:
				k, _ = t.keyOf(req.PutRequest.Item)
			case req.DeleteRequest != nil:
				k, _ = t.keyOf(req.DeleteRequest.Key)
			}
			if seen[k] {
				return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "Provided list of item keys contains duplicates"}
			}
			seen[k] = true
		}
	}

	out := &dynamodb.BatchWriteItemOutput{UnprocessedItems: map[string][]types.WriteRequest{}}
	for table, reqs := range in.RequestItems {
		t := f.tables[table]
		for _, req := range reqs {
			if f.Unprocessed != nil && f.Unprocessed(table, req) {
				out.UnprocessedItems[table] = append(out.UnprocessedItems[table], req)
				continue
			}
			switch {
			case req.PutRequest != nil:
				if err := t.put(req.PutRequest.Item); err != nil {
					return nil, err
				}
			case req.DeleteRequest != nil:
				k, _ := t.keyOf(req.DeleteRequest.Key)
				t.delete(k)
			}
		}
	}
	return out, nil
}

func copyItem(item Item) Item {
	cp := make(Item, len(item))
	for k, v := range item {
		cp[k] = v
	}
	return cp
}

func parseConjunction(expr string, names map[string]string, values map[string]types.AttributeValue) (map[string]types.AttributeValue, error) {
	conds := map[string]types.AttributeValue{}
	if strings.TrimSpace(expr) == "" {
		return conds, nil
	}
	for _, clause := range strings.Split(expr, " AND ") {
		name, value, err := resolveEquality(clause, names, values)
		if err != nil {
			return nil, err
		}
		conds[name] = value
	}
	return conds, nil
}

func resolveEquality(clause string, names map[string]string, values map[string]types.AttributeValue) (string, types.AttributeValue, error) {
	lhs, rhs, ok := strings.Cut(clause, "=")
	if !ok {
		return "", nil, fmt.Errorf("fake dynamodb: unsupported clause %q", clause)
	}
	name := strings.TrimSpace(lhs)
	if strings.HasPrefix(name, "#") {
		resolved, ok := names[name]
		if !ok {
			return "", nil, fmt.Errorf("fake dynamodb: undefined name %s", name)
		}
		name = resolved
	}
	placeholder := strings.TrimSpace(rhs)
	value, ok := values[placeholder]
	if !ok {
		return "", nil, fmt.Errorf("fake dynamodb: undefined value %s", placeholder)
	}
	return name, value, nil
}

func matches(item Item, conds map[string]types.AttributeValue) bool {
	for name, want := range conds {
		if !attrEqual(item[name], want) {
			return false
		}
	}
	return true
}

func attrEqual(a, b types.AttributeValue) bool {
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
	case nil:
		return b == nil
	default:
		return reflect.DeepEqual(a, b)
	}
}
