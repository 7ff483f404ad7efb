package storage

import (
	"context"

	"github.com/poiesic/itemvec/core"
)

// IndexSpec identifies a vector index. Two specs with the same name must
// agree on dimension and metric.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    Metric
}

// RecencyFilter keeps records whose date field is at or after Min
// (epoch milliseconds, UTC).
type RecencyFilter struct {
	Field string
	Min   int64
}

// Query is a top-K similarity request against one index.
type Query struct {
	Vector []float32
	TopK   int

	// Filter is pushed down to the index when SupportsFilter reports true.
	// Indexes that cannot evaluate it exactly may return a superset.
	Filter *RecencyFilter
}

// Match is one similarity result. Higher scores are more similar for
// every metric.
type Match struct {
	ID       string
	Score    float32
	Metadata core.Metadata
}

// VectorIndex is a durable keyed store of id -> (vector, metadata) with
// similarity search. Implementations must be thread-safe.
type VectorIndex interface {
	// EnsureIndex creates the index if it does not exist. It reports whether
	// the index was created. An existing index with a different dimension or
	// metric returns ErrIndexConflict.
	EnsureIndex(ctx context.Context, spec IndexSpec) (bool, error)

	// DescribeIndex returns the spec of an existing index or ErrIndexNotFound.
	DescribeIndex(ctx context.Context, name string) (IndexSpec, error)

	// Upsert writes records atomically: either every id is replaced or none
	// is. Re-upserting an id fully overwrites its vector and metadata.
	Upsert(ctx context.Context, index string, records ...*core.EmbeddingRecord) error

	// Query returns up to q.TopK matches ordered by descending score.
	Query(ctx context.Context, index string, q Query) ([]Match, error)

	// Fetch returns the stored records for ids. Missing ids are skipped.
	Fetch(ctx context.Context, index string, ids ...string) ([]*core.EmbeddingRecord, error)

	// Scan calls fn with successive batches of at most batchSize records in
	// id order. Returning an error from fn stops the scan.
	Scan(ctx context.Context, index string, batchSize int, fn func([]*core.EmbeddingRecord) error) error

	// Count returns the number of records in the index.
	Count(ctx context.Context, index string) (int, error)

	// SupportsFilter reports whether Query evaluates RecencyFilter server-side.
	SupportsFilter() bool

	// Close closes the index backend and releases resources.
	Close() error
}
