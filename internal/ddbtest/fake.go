// Package ddbtest provides an in-memory stand-in for the DynamoDB API used by the store.
//
// The fake models one table keyed on (pk, sk) with a sparse global secondary index on
// (sk, data). It evaluates condition and key condition expressions, applies transactions
// atomically and reports per-item cancellation reasons like the real service.
package ddbtest

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	attrPK   = "pk"
	attrSK   = "sk"
	attrData = "data"

	maxTransactItems = 100
	maxBatchItems    = 25
)

// Client is an in-memory DynamoDB table. The zero value is not usable; call New.
type Client struct {
	// PageSize caps the number of items a single Query or Scan call returns, standing in for
	// the 1 MB response limit. Zero means no cap.
	PageSize int

	// Unprocessed is the number of BatchWriteItem calls that will hand back their last request
	// as unprocessed before the fake starts accepting whole batches.
	Unprocessed int

	mu    sync.Mutex
	items map[key]map[string]types.AttributeValue
	calls map[string]int
	fail  map[string]error
}

type key struct{ pk, sk string }

// New returns an empty table.
func New() *Client {
	return &Client{
		items: make(map[key]map[string]types.AttributeValue),
		calls: make(map[string]int),
		fail:  make(map[string]error),
	}
}

// Calls returns how many times operation has been invoked.
func (c *Client) Calls(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[operation]
}

// FailNext makes the next call to operation return err.
func (c *Client) FailNext(operation string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail[operation] = err
}

// Len returns the number of stored items.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Item returns a copy of the item stored at (pk, sk), or nil.
func (c *Client) Item(pk, sk string) map[string]types.AttributeValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.items[key{pk, sk}])
}

// Keys returns the keys of every stored item as "pk|sk", sorted.
func (c *Client) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.items))
	for k := range c.items {
		out = append(out, k.pk+"|"+k.sk)
	}
	slices.Sort(out)
	return out
}

// Put stores item unconditionally. It is a test helper, not part of the DynamoDB API.
func (c *Client) Put(item map[string]types.AttributeValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, err := itemKey(item)
	if err != nil {
		return err
	}
	c.items[k] = clone(item)
	return nil
}

// begin records a call and returns any injected failure. c.mu must be held.
func (c *Client) begin(operation string) error {
	c.calls[operation]++
	if err, ok := c.fail[operation]; ok {
		delete(c.fail, operation)
		return err
	}
	return nil
}

func (c *Client) GetItem(ctx context.Context, params *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("GetItem"); err != nil {
		return nil, err
	}
	k, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: clone(c.items[k])}, nil
}

func (c *Client) Query(ctx context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("Query"); err != nil {
		return nil, err
	}

	match, err := compile(aws.ToString(params.KeyConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues)
	if err != nil {
		return nil, validation("KeyConditionExpression: %v", err)
	}

	onIndex := aws.ToString(params.IndexName) != ""
	if onIndex && aws.ToBool(params.ConsistentRead) {
		return nil, validation("consistent reads are not supported on global secondary indexes")
	}

	var rows []map[string]types.AttributeValue
	for _, item := range c.items {
		if onIndex {
			if _, ok := item[attrData]; !ok {
				continue
			}
		}
		if match(item) {
			rows = append(rows, item)
		}
	}

	order := tableOrder
	if onIndex {
		order = indexOrder
	}
	slices.SortFunc(rows, order)
	if params.ScanIndexForward != nil && !*params.ScanIndexForward {
		slices.Reverse(rows)
	}

	page, last := c.page(rows, order, params.ExclusiveStartKey, params.ScanIndexForward == nil || *params.ScanIndexForward, params.Limit)
	out := &dynamodb.QueryOutput{Count: int32(len(page))}
	for _, item := range page {
		out.Items = append(out.Items, clone(item))
	}
	if last != nil {
		out.LastEvaluatedKey = lastKey(last, onIndex)
	}
	return out, nil
}

func (c *Client) Scan(ctx context.Context, params *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("Scan"); err != nil {
		return nil, err
	}

	rows := make([]map[string]types.AttributeValue, 0, len(c.items))
	for _, item := range c.items {
		rows = append(rows, item)
	}
	slices.SortFunc(rows, tableOrder)

	page, last := c.page(rows, tableOrder, params.ExclusiveStartKey, true, params.Limit)
	out := &dynamodb.ScanOutput{Count: int32(len(page))}
	for _, item := range page {
		out.Items = append(out.Items, clone(item))
	}
	if last != nil {
		out.LastEvaluatedKey = lastKey(last, false)
	}
	return out, nil
}

// page cuts one response out of sorted rows. last is set when the response was cut short.
func (c *Client) page(rows []map[string]types.AttributeValue, order func(a, b map[string]types.AttributeValue) int, start map[string]types.AttributeValue, forward bool, limit *int32) (page []map[string]types.AttributeValue, last map[string]types.AttributeValue) {
	if len(start) > 0 {
		i := 0
		for i < len(rows) {
			d := order(rows[i], start)
			if (forward && d > 0) || (!forward && d < 0) {
				break
			}
			i++
		}
		rows = rows[i:]
	}

	n := len(rows)
	capped := false
	if limit != nil && int(*limit) <= n {
		n = int(*limit)
		capped = true
	}
	if c.PageSize > 0 && c.PageSize < n {
		n = c.PageSize
		capped = true
	}
	page = rows[:n]
	if capped && n > 0 {
		last = page[n-1]
	}
	return page, last
}

func (c *Client) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("TransactWriteItems"); err != nil {
		return nil, err
	}
	if len(params.TransactItems) > maxTransactItems {
		return nil, validation("member must have length less than or equal to %d", maxTransactItems)
	}

	type op struct {
		key  key
		put  map[string]types.AttributeValue
		cond predicate
		old  bool
	}
	ops := make([]op, 0, len(params.TransactItems))
	seen := make(map[key]bool, len(params.TransactItems))

	for _, ti := range params.TransactItems {
		var (
			o     op
			err   error
			expr  *string
			names map[string]string
			vals  map[string]types.AttributeValue
		)
		switch {
		case ti.Put != nil:
			o.key, err = itemKey(ti.Put.Item)
			o.put = ti.Put.Item
			expr, names, vals = ti.Put.ConditionExpression, ti.Put.ExpressionAttributeNames, ti.Put.ExpressionAttributeValues
			o.old = ti.Put.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld
		case ti.Delete != nil:
			o.key, err = itemKey(ti.Delete.Key)
			expr, names, vals = ti.Delete.ConditionExpression, ti.Delete.ExpressionAttributeNames, ti.Delete.ExpressionAttributeValues
			o.old = ti.Delete.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld
		case ti.ConditionCheck != nil:
			o.key, err = itemKey(ti.ConditionCheck.Key)
			expr, names, vals = ti.ConditionCheck.ConditionExpression, ti.ConditionCheck.ExpressionAttributeNames, ti.ConditionCheck.ExpressionAttributeValues
			o.old = ti.ConditionCheck.ReturnValuesOnConditionCheckFailure == types.ReturnValuesOnConditionCheckFailureAllOld
		default:
			return nil, validation("transact item has no operation")
		}
		if err != nil {
			return nil, err
		}
		if seen[o.key] {
			return nil, validation("transaction request cannot include multiple operations on one item")
		}
		seen[o.key] = true
		if aws.ToString(expr) != "" {
			if o.cond, err = compile(*expr, names, vals); err != nil {
				return nil, validation("ConditionExpression: %v", err)
			}
		}
		ops = append(ops, o)
	}

	reasons := make([]types.CancellationReason, len(ops))
	failed := false
	for i, o := range ops {
		reasons[i] = types.CancellationReason{Code: aws.String("None")}
		if o.cond == nil {
			continue
		}
		current := c.items[o.key]
		if o.cond(current) {
			continue
		}
		failed = true
		reasons[i] = types.CancellationReason{
			Code:    aws.String("ConditionalCheckFailed"),
			Message: aws.String("The conditional request failed"),
		}
		if o.old && current != nil {
			reasons[i].Item = clone(current)
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	for i, o := range ops {
		ti := params.TransactItems[i]
		switch {
		case ti.Put != nil:
			c.items[o.key] = clone(o.put)
		case ti.Delete != nil:
			delete(c.items, o.key)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (c *Client) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.begin("BatchWriteItem"); err != nil {
		return nil, err
	}

	total := 0
	for _, requests := range params.RequestItems {
		total += len(requests)
	}
	if total > maxBatchItems {
		return nil, validation("member must have length less than or equal to %d", maxBatchItems)
	}

	unprocessed := make(map[string][]types.WriteRequest)
	for table, requests := range params.RequestItems {
		if c.Unprocessed > 0 && len(requests) > 0 {
			c.Unprocessed--
			unprocessed[table] = requests[len(requests)-1:]
			requests = requests[:len(requests)-1]
		}
		for _, r := range requests {
			switch {
			case r.PutRequest != nil:
				k, err := itemKey(r.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				c.items[k] = clone(r.PutRequest.Item)
			case r.DeleteRequest != nil:
				k, err := itemKey(r.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(c.items, k)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{UnprocessedItems: unprocessed}, nil
}

func itemKey(item map[string]types.AttributeValue) (key, error) {
	pk, ok := item[attrPK].(*types.AttributeValueMemberS)
	if !ok {
		return key{}, validation("missing key attribute %s", attrPK)
	}
	sk, ok := item[attrSK].(*types.AttributeValueMemberS)
	if !ok {
		return key{}, validation("missing key attribute %s", attrSK)
	}
	return key{pk.Value, sk.Value}, nil
}

func str(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func tableOrder(a, b map[string]types.AttributeValue) int {
	return cmp.Or(
		cmp.Compare(str(a, attrPK), str(b, attrPK)),
		cmp.Compare(str(a, attrSK), str(b, attrSK)),
	)
}

func indexOrder(a, b map[string]types.AttributeValue) int {
	return cmp.Or(
		cmp.Compare(str(a, attrSK), str(b, attrSK)),
		cmp.Compare(str(a, attrData), str(b, attrData)),
		cmp.Compare(str(a, attrPK), str(b, attrPK)),
	)
}

func lastKey(item map[string]types.AttributeValue, onIndex bool) map[string]types.AttributeValue {
	out := map[string]types.AttributeValue{
		attrPK: item[attrPK],
		attrSK: item[attrSK],
	}
	if onIndex {
		out[attrData] = item[attrData]
	}
	return out
}

func clone(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	if item == nil {
		return nil
	}
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

// ValidationError is returned for requests the real service would reject outright.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "ValidationException: " + e.Message
}

func validation(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}
