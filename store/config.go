package store

import "time"

const (
	defaultTableName = "Blog"
	defaultIndexName = "GSI"
	defaultLimit     = 10
	maxLimit         = 1000
)

// Config holds configuration for the Store.
type Config struct {
	// TableName is the name of the blog table.
	// Default: "Blog"
	TableName string

	// IndexName is the global secondary index keyed on (sk, data).
	// Default: "GSI"
	IndexName string

	// DefaultLimit is the page size used when a query does not set one.
	// Default: 10
	// Max: 1000
	DefaultLimit int32

	// MaxBatchRetries bounds how often unprocessed batch deletes are resubmitted.
	// Default: 5
	MaxBatchRetries int

	// RetryBackoff is the first delay between batch resubmissions; it doubles each attempt.
	// Default: 50ms
	RetryBackoff time.Duration

	// EventuallyConsistent disables strongly consistent reads on the base table.
	// The index is always eventually consistent.
	EventuallyConsistent bool
}

// DefaultConfig returns the table layout used by the blog.
func DefaultConfig() Config {
	return Config{
		TableName:       defaultTableName,
		IndexName:       defaultIndexName,
		DefaultLimit:    defaultLimit,
		MaxBatchRetries: 5,
		RetryBackoff:    50 * time.Millisecond,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.TableName == "" {
		c.TableName = defaultTableName
	}
	if c.IndexName == "" {
		c.IndexName = defaultIndexName
	}
	if c.DefaultLimit < 1 {
		c.DefaultLimit = defaultLimit
	}
	if c.DefaultLimit > maxLimit {
		c.DefaultLimit = maxLimit
	}
	if c.MaxBatchRetries < 0 {
		c.MaxBatchRetries = 0
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 50 * time.Millisecond
	}
}
