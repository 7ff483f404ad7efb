package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/retry"
	"github.com/poiesic/itemvec/storage"
)

// Writer upserts embedding records into one index in fixed-size chunks.
// Each chunk is a single atomic VectorIndex.Upsert call, retried as a
// whole; chunks are independent and may run concurrently.
type Writer struct {
	index     storage.VectorIndex
	indexName string
	chunkSize int
	policy    retry.Policy
	pool      *ants.Pool
	ownsPool  bool
	logger    *slog.Logger
}

// NewWriter creates a writer with its own worker pool.
func NewWriter(index storage.VectorIndex, opts ...Option) (*Writer, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, err
	}
	w := newWriter(index, o, pool)
	w.ownsPool = true
	return w, nil
}

func newWriter(index storage.VectorIndex, o *options, pool *ants.Pool) *Writer {
	return &Writer{
		index:     index,
		indexName: o.indexName,
		chunkSize: o.chunkSize,
		policy:    o.policy,
		pool:      pool,
		logger:    o.logger.With("component", "writer", "index", o.indexName),
	}
}

// EnsureIndex creates the writer's index if it does not exist. An existing
// index must match the spec's dimension and metric.
func (w *Writer) EnsureIndex(ctx context.Context, spec storage.IndexSpec) (bool, error) {
	spec = spec.Normalized()
	if spec.Name == "" {
		spec.Name = w.indexName
	}
	if spec.Name != w.indexName {
		return false, fmt.Errorf("%w: writer targets %q, spec names %q", storage.ErrInvalidIndexSpec, w.indexName, spec.Name)
	}
	created, err := w.index.EnsureIndex(ctx, spec)
	if err != nil {
		return false, err
	}
	if created {
		w.logger.Info("index created", "dimension", spec.Dimension, "metric", spec.Metric)
	}
	return created, nil
}

// Upsert writes records in ceil(len/chunkSize) chunks. Failed chunks are
// reported, never returned as an error, so a caller can account for them
// per record. Once ctx is canceled no further chunks are dispatched; those
// are reported failed with ReasonCanceled. Chunks already running finish
// or time out on their own.
func (w *Writer) Upsert(ctx context.Context, records []*core.EmbeddingRecord) *UpsertReport {
	report := &UpsertReport{}
	if len(records) == 0 {
		return report
	}

	chunks := slices.Collect(slices.Chunk(records, w.chunkSize))
	report.Chunks = len(chunks)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		failures []ChunkFailure
		written  int
	)
	record := func(f *ChunkFailure, n int) {
		mu.Lock()
		defer mu.Unlock()
		if f != nil {
			failures = append(failures, *f)
			return
		}
		written += n
	}

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			record(&ChunkFailure{Chunk: i, IDs: recordIDs(chunk), Reason: ReasonCanceled, Err: err}, 0)
			continue
		}

		wg.Add(1)
		err := w.pool.Submit(func() {
			defer wg.Done()
			record(w.writeChunk(ctx, i, chunk), len(chunk))
		})
		if err != nil {
			wg.Done()
			record(&ChunkFailure{Chunk: i, IDs: recordIDs(chunk), Reason: err.Error(), Err: err}, 0)
		}
	}
	wg.Wait()

	slices.SortFunc(failures, func(a, b ChunkFailure) int { return a.Chunk - b.Chunk })
	report.Written = written
	report.Failed = failures

	if !report.OK() {
		w.logger.Warn("upsert finished with failed chunks",
			"chunks", report.Chunks, "failed", len(report.Failed), "written", report.Written)
	} else {
		w.logger.Debug("upsert finished", "chunks", report.Chunks, "written", report.Written)
	}
	return report
}

func (w *Writer) writeChunk(ctx context.Context, i int, chunk []*core.EmbeddingRecord) *ChunkFailure {
	out := retry.Do(ctx, w.policy, func(ctx context.Context) error {
		return w.index.Upsert(ctx, w.indexName, chunk...)
	})
	if out.OK() {
		return nil
	}

	err := fmt.Errorf("%w: chunk %d after %d attempts: %w", ErrStoreWrite, i, out.Attempts, out.Err)
	w.logger.Error("chunk upsert failed", "chunk", i, "records", len(chunk), "attempts", out.Attempts, "err", out.Err)
	return &ChunkFailure{
		Chunk:    i,
		IDs:      recordIDs(chunk),
		Attempts: out.Attempts,
		Reason:   err.Error(),
		Err:      err,
	}
}

// Release releases the worker pool if the writer created it.
func (w *Writer) Release() {
	if w.ownsPool && w.pool != nil {
		w.pool.Release()
	}
}

func recordIDs(records []*core.EmbeddingRecord) []string {
	ids := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
	}
	return ids
}
