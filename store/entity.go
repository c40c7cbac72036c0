package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names shared by every item in the table.
const (
	AttrPK      = "pk"
	AttrSK      = "sk"
	AttrData    = "data"
	AttrVersion = "version"
)

// Client is the subset of *dynamodb.Client used by the Store.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

// Key is the primary key of an item.
type Key struct {
	PK string
	SK string
}

// Attributes returns the key in DynamoDB form.
func (k Key) Attributes() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: k.PK},
		AttrSK: &types.AttributeValueMemberS{Value: k.SK},
	}
}

// StartKey is the position to resume an index query from.
type StartKey struct {
	PK   string
	SK   string
	Data string
}

// Attributes returns the start key in DynamoDB form (table key plus index key).
func (k StartKey) Attributes() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK:   &types.AttributeValueMemberS{Value: k.PK},
		AttrSK:   &types.AttributeValueMemberS{Value: k.SK},
		AttrData: &types.AttributeValueMemberS{Value: k.Data},
	}
}

// Item is a raw DynamoDB item.
type Item map[string]types.AttributeValue

// String returns a string attribute.
func (i Item) String(name string) (string, bool) {
	v, ok := i[name].(*types.AttributeValueMemberS)
	if !ok {
		return "", false
	}
	return v.Value, true
}

// Key returns the primary key of the item.
func (i Item) Key() (Key, error) {
	pk, ok := i.String(AttrPK)
	if !ok {
		return Key{}, fmt.Errorf("%w: missing %s", ErrMalformedRecord, AttrPK)
	}
	sk, ok := i.String(AttrSK)
	if !ok {
		return Key{}, fmt.Errorf("%w: missing %s", ErrMalformedRecord, AttrSK)
	}
	return Key{PK: pk, SK: sk}, nil
}

// StartKey returns the index position of the item.
func (i Item) StartKey() (StartKey, error) {
	key, err := i.Key()
	if err != nil {
		return StartKey{}, err
	}
	data, ok := i.String(AttrData)
	if !ok {
		return StartKey{}, fmt.Errorf("%w: missing %s", ErrMalformedRecord, AttrData)
	}
	return StartKey{PK: key.PK, SK: key.SK, Data: data}, nil
}

// Version returns the optimistic lock version of the item.
func (i Item) Version() (int64, error) {
	v, ok := i[AttrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedRecord, AttrVersion)
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, AttrVersion, err)
	}
	return n, nil
}

// QueryInput defines an index query.
type QueryInput struct {
	// SortKey selects the index partition (the item sort key, e.g. "#post#published").
	SortKey string

	// Limit is the page size (0 = Config.DefaultLimit).
	Limit int32

	// StartKey resumes after a previous page.
	StartKey *StartKey

	// Ascending returns oldest-first; the default is newest-first.
	Ascending bool
}

// Page is one page of index query results.
type Page struct {
	Items []Item

	// Next is set when more items follow this page.
	Next *StartKey
}
