package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	// maxTransactItems is the DynamoDB limit for TransactWriteItems.
	maxTransactItems = 100

	// maxBatchItems is the DynamoDB limit for BatchWriteItem.
	maxBatchItems = 25

	codeConditionalCheckFailed = "ConditionalCheckFailed"
	codeTransactionConflict    = "TransactionConflict"
)

// Store executes reads, index queries and conditional multi-item writes against one table.
//
// A Store holds no mutable state and is safe for concurrent use; every consistency guarantee
// comes from DynamoDB conditional transactions.
type Store struct {
	client Client
	config Config
	logger *zap.Logger
}

// New creates a new Store instance.
func New(client Client, config Config) *Store {
	return NewWithLogger(client, config, nil)
}

// NewWithLogger creates a new Store instance that logs write outcomes to logger.
func NewWithLogger(client Client, config Config, logger *zap.Logger) *Store {
	config.validate()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client: client,
		config: config,
		logger: logger,
	}
}

// Config returns the validated configuration.
func (s *Store) Config() Config {
	return s.config
}

// Get retrieves the item at key, returning ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, key Key) (Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.TableName),
		Key:            key.Attributes(),
		ConsistentRead: aws.Bool(!s.config.EventuallyConsistent),
	})
	if err != nil {
		return nil, err
	}
	if len(result.Item) == 0 {
		return nil, ErrNotFound
	}
	return Item(result.Item), nil
}

// Query reads one page of an index partition.
//
// The page holds at most Limit items; Next is set only when at least one more item exists, so
// an exact multiple of Limit never produces a trailing empty page.
func (s *Store) Query(ctx context.Context, input QueryInput) (*Page, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = s.config.DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	expr, err := IndexKeyCondition(input.SortKey)
	if err != nil {
		return nil, buildErr("key condition", err)
	}

	// Fetch one extra item to learn whether another page exists.
	want := int(limit) + 1
	queryInput := &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		IndexName:                 aws.String(s.config.IndexName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(input.Ascending),
		Limit:                     aws.Int32(int32(want)),
	}
	if input.StartKey != nil {
		queryInput.ExclusiveStartKey = input.StartKey.Attributes()
	}

	var items []Item
	for {
		result, err := s.client.Query(ctx, queryInput)
		if err != nil {
			return nil, err
		}
		for _, raw := range result.Items {
			items = append(items, Item(raw))
		}
		// A page can come back short (1 MB response cap) with more data behind it.
		if len(items) >= want || len(result.LastEvaluatedKey) == 0 {
			break
		}
		queryInput.ExclusiveStartKey = result.LastEvaluatedKey
		queryInput.Limit = aws.Int32(int32(want - len(items)))
	}

	page := &Page{Items: items}
	if len(items) > int(limit) {
		page.Items = items[:limit]
		next, err := page.Items[limit-1].StartKey()
		if err != nil {
			return nil, err
		}
		page.Next = &next
	}
	return page, nil
}

// QueryPartition returns every item under pk whose sort key starts with skPrefix.
// An empty prefix returns the whole partition.
func (s *Store) QueryPartition(ctx context.Context, pk, skPrefix string) ([]Item, error) {
	expr, err := PartitionKeyCondition(pk, skPrefix)
	if err != nil {
		return nil, buildErr("key condition", err)
	}

	var items []Item
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:                 aws.String(s.config.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(!s.config.EventuallyConsistent),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, raw := range page.Items {
			items = append(items, Item(raw))
		}
	}
	return items, nil
}

// CreateUnique writes primary and its projections in one transaction.
// The primary put is conditioned on no item existing at its key; if that fails nothing is
// written and ErrDuplicateKey is returned.
func (s *Store) CreateUnique(ctx context.Context, primary Item, projections ...Item) error {
	expr, err := NotExistsCondition()
	if err != nil {
		return buildErr("condition", err)
	}

	items := make([]types.TransactWriteItem, 0, 1+len(projections))

	// Track item indices for error mapping
	primaryIndex := len(items)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                aws.String(s.config.TableName),
			Item:                     primary,
			ConditionExpression:      expr.Condition(),
			ExpressionAttributeNames: expr.Names(),
		},
	})
	for _, p := range projections {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.config.TableName),
				Item:      p,
			},
		})
	}

	err = s.transact(ctx, items)
	if err == nil {
		s.logger.Debug("created item", zap.String("key", itemKey(primary)), zap.Int("projections", len(projections)))
		return nil
	}
	return s.mapCreateTransactionError(err, primaryIndex)
}

// UpdateWithVersionCheck replaces primary, writes puts and removes deletes in one transaction.
//
// The primary put is conditioned on the stored version being expectedVersion. If it is not,
// nothing is applied and ErrConcurrentUpdate is returned; ErrNotFound is returned when the
// primary item no longer exists.
func (s *Store) UpdateWithVersionCheck(ctx context.Context, expectedVersion int64, primary Item, puts []Item, deletes []Key) error {
	expr, err := VersionCondition(expectedVersion)
	if err != nil {
		return buildErr("condition", err)
	}

	items := make([]types.TransactWriteItem, 0, 1+len(puts)+len(deletes))
	for _, k := range deletes {
		items = append(items, types.TransactWriteItem{
			Delete: &types.Delete{
				TableName: aws.String(s.config.TableName),
				Key:       k.Attributes(),
			},
		})
	}

	primaryIndex := len(items)
	items = append(items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                           aws.String(s.config.TableName),
			Item:                                primary,
			ConditionExpression:                 expr.Condition(),
			ExpressionAttributeNames:            expr.Names(),
			ExpressionAttributeValues:           expr.Values(),
			ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
		},
	})
	for _, p := range puts {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.config.TableName),
				Item:      p,
			},
		})
	}

	err = s.transact(ctx, items)
	if err == nil {
		s.logger.Debug("updated item",
			zap.String("key", itemKey(primary)),
			zap.Int64("expectedVersion", expectedVersion),
			zap.Int("puts", len(puts)),
			zap.Int("deletes", len(deletes)),
		)
		return nil
	}
	return s.mapUpdateTransactionError(err, primaryIndex)
}

// DeleteAll removes every item stored under pk. It is not version checked.
func (s *Store) DeleteAll(ctx context.Context, pk string) error {
	items, err := s.QueryPartition(ctx, pk, "")
	if err != nil {
		return err
	}

	keys := make([]Key, 0, len(items))
	for _, item := range items {
		k, err := item.Key()
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}

	if err := s.BatchDelete(ctx, keys); err != nil {
		return fmt.Errorf("delete %s: %w", pk, err)
	}
	s.logger.Debug("deleted partition", zap.String("pk", pk), zap.Int("items", len(keys)))
	return nil
}

// Scan lazily yields every item in the table, paging internally.
func (s *Store) Scan(ctx context.Context) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		paginator := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{
			TableName:      aws.String(s.config.TableName),
			ConsistentRead: aws.Bool(!s.config.EventuallyConsistent),
		})
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, raw := range page.Items {
				if !yield(Item(raw), nil) {
					return
				}
			}
		}
	}
}

// Truncate deletes every item in the table. Intended for tests and local development.
func (s *Store) Truncate(ctx context.Context) error {
	var pending []Key
	deleted := 0
	for item, err := range s.Scan(ctx) {
		if err != nil {
			return err
		}
		k, err := item.Key()
		if err != nil {
			return err
		}
		pending = append(pending, k)
		if len(pending) == maxBatchItems {
			if err := s.BatchDelete(ctx, pending); err != nil {
				return err
			}
			deleted += len(pending)
			pending = pending[:0]
		}
	}
	if err := s.BatchDelete(ctx, pending); err != nil {
		return err
	}
	deleted += len(pending)

	s.logger.Info("truncated table", zap.String("table", s.config.TableName), zap.Int("items", deleted))
	return nil
}

// BatchDelete removes keys in batches of 25, resubmitting unprocessed requests with backoff.
func (s *Store) BatchDelete(ctx context.Context, keys []Key) error {
	for start := 0; start < len(keys); start += maxBatchItems {
		end := min(start+maxBatchItems, len(keys))

		requests := make([]types.WriteRequest, 0, end-start)
		for _, k := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: k.Attributes()},
			})
		}
		if err := s.batchWrite(ctx, requests); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) batchWrite(ctx context.Context, requests []types.WriteRequest) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		result, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				s.config.TableName: requests,
			},
		})
		if err != nil {
			return err
		}

		requests = result.UnprocessedItems[s.config.TableName]
		if len(requests) == 0 {
			return nil
		}
		if attempt >= s.config.MaxBatchRetries {
			return fmt.Errorf("%w: %d after %d attempts", ErrUnprocessedItems, len(requests), attempt+1)
		}

		s.logger.Warn("resubmitting unprocessed batch items",
			zap.Int("items", len(requests)),
			zap.Int("attempt", attempt+1),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (s *Store) transact(ctx context.Context, items []types.TransactWriteItem) error {
	if len(items) > maxTransactItems {
		return fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(items), maxTransactItems)
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	return err
}

// mapCreateTransactionError maps DynamoDB transaction errors for CreateUnique.
// primaryIndex is the index of the conditioned primary put.
func (s *Store) mapCreateTransactionError(err error, primaryIndex int) error {
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if i == primaryIndex && aws.ToString(reason.Code) == codeConditionalCheckFailed {
				return ErrDuplicateKey
			}
		}
	}
	return err
}

// mapUpdateTransactionError maps DynamoDB transaction errors for UpdateWithVersionCheck.
func (s *Store) mapUpdateTransactionError(err error, primaryIndex int) error {
	var txErr *types.TransactionCanceledException
	if !errors.As(err, &txErr) {
		return err
	}

	for i, reason := range txErr.CancellationReasons {
		switch aws.ToString(reason.Code) {
		case codeConditionalCheckFailed:
			if i != primaryIndex {
				continue
			}
			// ALL_OLD is empty when the condition failed because nothing was stored.
			if len(reason.Item) == 0 {
				return ErrNotFound
			}
			return ErrConcurrentUpdate
		case codeTransactionConflict:
			// Another transaction is writing one of our items right now.
			return ErrConcurrentUpdate
		}
	}
	return err
}

func itemKey(item Item) string {
	k, err := item.Key()
	if err != nil {
		return "?"
	}
	return k.PK + "|" + k.SK
}
