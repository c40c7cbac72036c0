// Package store provides the DynamoDB storage engine behind the blog.
//
// Everything lives in one table keyed on (pk, sk). A global secondary index on (sk, data)
// turns every distinct sort key into a listing: "#post" lists all posts, "#post#published"
// the published ones and "#post#published#tag#<name>" the published posts carrying a tag.
// Callers build the items; the store only knows about keys, versions and conditions.
//
// # Writes
//
// Multi-item writes go through TransactWriteItems so an entity and its projections change
// together or not at all:
//
//   - [Store.CreateUnique] conditions the primary put on attribute_not_exists(pk)
//   - [Store.UpdateWithVersionCheck] conditions the primary put on the stored version
//   - [Store.DeleteAll] removes a whole partition in 25-item batches
//
// A transaction holds at most 100 items; larger writes fail with [ErrTooManyItems]
// before anything is sent.
//
// # Reads
//
// [Store.Query] pages through one index partition, newest first by default. It reads one
// item past the requested limit so [Page.Next] is only set when another page exists.
// [Store.Scan] walks the base table lazily as an iterator.
//
// # Table
//
// [TableDefinition] describes the table, its index and the key stream the sweeper consumes.
// [EnsureTable] creates it when missing and [DropTable] removes it.
//
// # Errors
//
//   - [ErrNotFound] - no item at the key
//   - [ErrDuplicateKey] - create found an existing primary item
//   - [ErrConcurrentUpdate] - version check failed or a transaction conflicted
//   - [ErrMalformedRecord] - a stored item is missing required attributes
//   - [ErrTooManyItems] - transaction item limit exceeded
//   - [ErrUnprocessedItems] - batch delete retries exhausted
package store
