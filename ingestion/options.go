package ingestion

import (
	"log/slog"
	"runtime"

	"github.com/poiesic/itemvec/progress"
	"github.com/poiesic/itemvec/retry"
	"github.com/poiesic/itemvec/storage"
)

const (
	// DefaultIndexName is the index written when none is configured.
	DefaultIndexName = "items"

	// DefaultChunkSize is the number of records per upsert call.
	DefaultChunkSize = 500

	// DefaultEmbedBatchSize is the number of texts per embedding call.
	DefaultEmbedBatchSize = 64
)

type options struct {
	indexName      string
	poolSize       int
	chunkSize      int
	embedBatchSize int
	policy         retry.Policy
	logger         *slog.Logger
	progress       *progress.Tracker
	contentIDs     bool
}

func defaultOptions() *options {
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	return &options{
		indexName:      DefaultIndexName,
		poolSize:       poolSize,
		chunkSize:      DefaultChunkSize,
		embedBatchSize: DefaultEmbedBatchSize,
		policy:         retry.DefaultPolicy(),
		logger:         slog.Default(),
	}
}

// Option configures a Pipeline or a Writer.
type Option func(*options) error

// WithIndexName sets the target index. The name is normalized the way the
// index normalizes it. Default is DefaultIndexName.
func WithIndexName(name string) Option {
	return func(o *options) error {
		if name = (storage.IndexSpec{Name: name}).Normalized().Name; name != "" {
			o.indexName = name
		}
		return nil
	}
}

// WithPoolSize sets the worker pool size for concurrent batches and chunks.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			size = 1
		}
		o.poolSize = size
		return nil
	}
}

// WithChunkSize sets the number of records per upsert call.
func WithChunkSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return ErrInvalidChunkSize
		}
		o.chunkSize = size
		return nil
	}
}

// WithEmbedBatchSize sets the number of texts per embedding call.
func WithEmbedBatchSize(size int) Option {
	return func(o *options) error {
		if size < 1 {
			return ErrInvalidBatchSize
		}
		o.embedBatchSize = size
		return nil
	}
}

// WithRetryPolicy sets the retry policy for embedding batches and upsert
// chunks.
func WithRetryPolicy(p retry.Policy) Option {
	return func(o *options) error {
		if p.MaxAttempts < 1 {
			return retry.ErrInvalidMaxAttempts
		}
		o.policy = p
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithProgress reports processed items to a started tracker.
func WithProgress(tracker *progress.Tracker) Option {
	return func(o *options) error {
		o.progress = tracker
		return nil
	}
}

// WithContentIDs gives records that carry neither id nor _id an identity
// derived from their content (see core.ContentID) instead of failing them.
func WithContentIDs(enabled bool) Option {
	return func(o *options) error {
		o.contentIDs = enabled
		return nil
	}
}

func applyOptions(opts []Option) (*options, error) {
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
