package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/itemvec/ai"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/storage"
)

const (
	// DefaultTopK is the number of neighbors requested from the index.
	DefaultTopK = 10

	// DefaultIndexName is the index searched when none is configured.
	DefaultIndexName = "items"
)

// Searcher finds catalog items similar to a query item.
type Searcher struct {
	index        storage.VectorIndex
	embedder     ai.Embedder
	indexName    string
	topK         int
	threshold    int64
	serverFilter bool
	logger       *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithIndexName sets the index to search.
func WithIndexName(name string) Option {
	return func(s *Searcher) error {
		if name != "" {
			s.indexName = name
		}
		return nil
	}
}

// WithTopK sets how many neighbors are requested. Recency filtering may
// return fewer.
func WithTopK(k int) Option {
	return func(s *Searcher) error {
		if k < 1 {
			return ErrInvalidTopK
		}
		s.topK = k
		return nil
	}
}

// WithThreshold sets the recency cutoff. Items created before t are never
// returned.
func WithThreshold(t time.Time) Option {
	return func(s *Searcher) error {
		s.threshold = t.UnixMilli()
		return nil
	}
}

// WithServerSideFiltering controls whether the recency filter is passed to
// indexes that support it. The client-side filter runs either way.
// Default is true.
func WithServerSideFiltering(enabled bool) Option {
	return func(s *Searcher) error {
		s.serverFilter = enabled
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(index storage.VectorIndex, provider ai.AIProvider, opts ...Option) (*Searcher, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	s := &Searcher{
		index:        index,
		embedder:     provider.Embedder(),
		indexName:    DefaultIndexName,
		topK:         DefaultTopK,
		threshold:    DefaultThreshold.UnixMilli(),
		serverFilter: true,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher", "index", s.indexName)

	return s, nil
}

// Threshold returns the recency cutoff in epoch milliseconds.
func (s *Searcher) Threshold() int64 {
	return s.threshold
}

// Search returns the metadata of items similar to query, most similar
// first, restricted to items created at or after the threshold.
func (s *Searcher) Search(ctx context.Context, query core.RawItem) ([]core.Metadata, error) {
	return s.SearchWithMonitor(ctx, query, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query core.RawItem, monitor SearchMonitor) ([]core.Metadata, error) {
	matches, err := s.search(ctx, query, monitor)
	if err != nil {
		return nil, err
	}
	results := make([]core.Metadata, len(matches))
	for i, m := range matches {
		results[i] = m.Metadata
	}
	if monitor != nil {
		monitor.Finish(results)
	}
	return results, nil
}

// SearchMatches is Search with similarity scores.
func (s *Searcher) SearchMatches(ctx context.Context, query core.RawItem) ([]storage.Match, error) {
	return s.search(ctx, query, nil)
}

func (s *Searcher) search(ctx context.Context, query core.RawItem, monitor SearchMonitor) ([]storage.Match, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	text, err := queryText(query)
	if err != nil {
		return nil, err
	}
	monitor.Start(text)

	vector, err := s.embedder.EmbedText(ctx, text)
	if err == nil && len(vector) == 0 {
		err = ai.ErrEmptyEmbedding
	}
	if err != nil {
		s.logger.Error("error generating embedding for query", "text", text, "err", err)
		return nil, &UnavailableError{Stage: "embed", Err: err}
	}
	monitor.AfterEmbedding(len(vector))

	filter := recencyFilter(s.threshold)
	q := storage.Query{Vector: ai.NormalizeVector(vector), TopK: s.topK}
	pushed := s.serverFilter && s.index.SupportsFilter()
	if pushed {
		q.Filter = filter
	}

	matches, err := s.index.Query(ctx, s.indexName, q)
	if err != nil {
		s.logger.Error("error querying for similar items", "err", err)
		return nil, &UnavailableError{Stage: "query", Err: err}
	}
	monitor.AfterQuery(matches, pushed)

	kept, dropped := filterRecent(matches, filter)
	if dropped > 0 {
		s.logger.Debug("dropped matches below recency threshold", "dropped", dropped, "serverFiltered", pushed)
	}
	monitor.AfterFilter(kept, dropped)

	return kept, nil
}

// queryText builds the embedding text of a query item. The query's own
// created_date plays no part in the text, so a bad one is ignored.
func queryText(query core.RawItem) (string, error) {
	if query == nil {
		return "", fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	item, err := core.DecodeItem(query)
	if item == nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}
	if item.Name == "" && item.Description == "" && item.Color == "" && item.Size == "" && item.Price == nil {
		return "", fmt.Errorf("%w: no searchable fields", ErrInvalidQuery)
	}
	return core.EmbeddingText(item), nil
}
