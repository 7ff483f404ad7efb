// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package itemvec indexes catalog items as text embeddings and answers
// "similar items" queries restricted to recently created items.
//
// An Engine opens the configured vector index and embedding provider once
// and hands out ingestion pipelines, searchers and reembedders that share
// them.
package itemvec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/poiesic/itemvec/ai"
	"github.com/poiesic/itemvec/ai/mock"
	"github.com/poiesic/itemvec/ai/openai"
	"github.com/poiesic/itemvec/config"
	"github.com/poiesic/itemvec/ingestion"
	"github.com/poiesic/itemvec/reembed"
	"github.com/poiesic/itemvec/search"
	"github.com/poiesic/itemvec/storage"
	"github.com/poiesic/itemvec/storage/badger"
	"github.com/poiesic/itemvec/storage/pgvector"
)

type Engine struct {
	cfg      *config.Config
	index    storage.VectorIndex
	provider ai.AIProvider
	spec     storage.IndexSpec

	ownsIndex    bool
	ownsProvider bool
	logger       *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	index    storage.VectorIndex
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithVectorIndex uses an already open index instead of the configured
// backend. The engine does not close it.
func WithVectorIndex(index storage.VectorIndex) EngineOption {
	return func(o *engineOptions) {
		o.index = index
	}
}

// WithProvider uses an existing AI provider instead of the configured one.
// The engine does not close it.
func WithProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewEngine validates cfg, opens the index backend and the embedding
// provider, discovers the embedding dimension and ensures the configured
// index exists with that dimension. A nil cfg means config.Default().
func NewEngine(ctx context.Context, cfg *config.Config, opts ...EngineOption) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	e := &Engine{
		cfg:      cfg,
		index:    options.index,
		provider: options.provider,
		logger:   options.logger.With("component", "engine"),
	}

	if e.provider == nil {
		provider, err := NewProvider(cfg.AI)
		if err != nil {
			return nil, err
		}
		e.provider = provider
		e.ownsProvider = true
	}

	if e.index == nil {
		index, err := OpenIndex(ctx, cfg.Index)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.index = index
		e.ownsIndex = true
	}

	dim, err := e.provider.Dimension(ctx)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("discovering embedding dimension: %w", err)
	}
	spec, err := cfg.Index.Spec(dim)
	if err != nil {
		e.Close()
		return nil, err
	}
	created, err := e.index.EnsureIndex(ctx, spec)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("ensuring index %q: %w", spec.Name, err)
	}
	e.spec = spec.Normalized()

	e.logger.Info("engine ready",
		"backend", cfg.Index.Backend,
		"index", e.spec.Name,
		"dimension", e.spec.Dimension,
		"metric", e.spec.Metric,
		"created", created)
	return e, nil
}

// NewProvider creates the embedding provider named by cfg.Provider.
func NewProvider(cfg config.AIConfig) (ai.AIProvider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		provider, err := openai.NewProvider(cfg.Options())
		if err != nil {
			return nil, fmt.Errorf("failed to create AI provider: %w", err)
		}
		return provider, nil
	case config.ProviderMock:
		dim := cfg.Dimensions
		if dim <= 0 {
			dim = mock.DefaultDimension
		}
		return mock.NewMockProviderWithEmbedder(mock.NewMockEmbedderWithDimension(dim)), nil
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// OpenIndex opens the vector index backend named by cfg.Backend.
func OpenIndex(ctx context.Context, cfg config.IndexConfig) (storage.VectorIndex, error) {
	switch cfg.Backend {
	case config.BackendBadger:
		index, err := badger.Open(cfg.Path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return index, nil
	case config.BackendMemory:
		return badger.Open("", true)
	case config.BackendPgvector:
		index, err := pgvector.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres index: %w", err)
		}
		return index, nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

func (e *Engine) Close() error {
	var errs []error
	if e.ownsProvider && e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if e.ownsIndex && e.index != nil {
		if err := e.index.Close(); err != nil {
			e.logger.Error("error closing vector index", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) Index() storage.VectorIndex {
	return e.index
}

func (e *Engine) Provider() ai.AIProvider {
	return e.provider
}

// Spec returns the spec of the engine's index.
func (e *Engine) Spec() storage.IndexSpec {
	return e.spec
}

func (e *Engine) Config() *config.Config {
	return e.cfg
}

// NewIngestionPipeline creates a pipeline writing to the engine's index.
// Settings from the configuration are applied first so opts override them.
func (e *Engine) NewIngestionPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	ic := e.cfg.Ingestion
	base := []ingestion.Option{
		ingestion.WithIndexName(e.spec.Name),
		ingestion.WithChunkSize(ic.ChunkSize),
		ingestion.WithEmbedBatchSize(ic.EmbedBatchSize),
		ingestion.WithRetryPolicy(ic.RetryPolicy()),
		ingestion.WithContentIDs(ic.ContentIDs),
		ingestion.WithLogger(e.logger),
	}
	if ic.PoolSize > 0 {
		base = append(base, ingestion.WithPoolSize(ic.PoolSize))
	}
	return ingestion.NewPipeline(e.index, e.provider, append(base, opts...)...)
}

// NewSearcher creates a searcher over the engine's index.
// Settings from the configuration are applied first so opts override them.
func (e *Engine) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	sc := e.cfg.Search
	threshold, err := sc.ThresholdTime()
	if err != nil {
		return nil, err
	}
	base := []search.Option{
		search.WithIndexName(e.spec.Name),
		search.WithTopK(sc.TopK),
		search.WithThreshold(threshold),
		search.WithServerSideFiltering(sc.ServerSideFilter),
		search.WithLogger(e.logger),
	}
	return search.NewSearcher(e.index, e.provider, append(base, opts...)...)
}

// NewReembedder prepares a run that re-embeds the engine's index with
// target's embedder into the index named targetName, creating it with the
// target dimension if needed. An empty targetName re-embeds in place, which
// requires the dimension to be unchanged.
func (e *Engine) NewReembedder(ctx context.Context, target ai.AIProvider, targetName string, cfg *reembed.Config, progress io.Writer) (*reembed.Reembedder, error) {
	if target == nil {
		target = e.provider
	}
	dim, err := target.Dimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("discovering target embedding dimension: %w", err)
	}

	spec := e.spec
	spec.Dimension = dim
	if targetName != "" {
		spec.Name = targetName
	}
	spec = spec.Normalized()
	if _, err := e.index.EnsureIndex(ctx, spec); err != nil {
		return nil, fmt.Errorf("ensuring target index %q: %w", spec.Name, err)
	}
	return reembed.NewReembedder(e.index, e.spec.Name, spec.Name, target.Embedder(), cfg, progress)
}
