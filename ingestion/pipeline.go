package ingestion

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/itemvec/ai"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/retry"
	"github.com/poiesic/itemvec/storage"
)

// Pipeline orchestrates the ingestion of catalog items into a vector index.
// Items flow through normalize, embed and upsert; an item failing a stage
// is dropped from the later ones and recorded in the RunReport.
type Pipeline struct {
	index    storage.VectorIndex
	embedder ai.Embedder
	writer   *Writer
	pool     *ants.Pool
	opts     *options
	logger   *slog.Logger
}

// NewPipeline creates a new ingestion pipeline writing to an existing index.
func NewPipeline(index storage.VectorIndex, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	o, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	pool, err := ants.NewPool(o.poolSize)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		index:    index,
		embedder: provider.Embedder(),
		writer:   newWriter(index, o, pool),
		pool:     pool,
		opts:     o,
		logger:   o.logger.With("component", "ingestion", "index", o.indexName),
	}, nil
}

// Writer returns the pipeline's chunked writer.
func (p *Pipeline) Writer() *Writer {
	return p.writer
}

// Items adapts a slice of raw records to the sequence Run consumes.
func Items(raws []core.RawItem) iter.Seq2[core.RawItem, error] {
	return func(yield func(core.RawItem, error) bool) {
		for _, raw := range raws {
			if !yield(raw, nil) {
				return
			}
		}
	}
}

// Ingest runs the pipeline over an in-memory batch.
func (p *Pipeline) Ingest(ctx context.Context, raws []core.RawItem) (*RunReport, error) {
	return p.Run(ctx, Items(raws))
}

// Run ingests every item of the sequence and reports the outcome.
//
// A sequence error matching core.ErrSchema is a per-record failure; any
// other sequence error stops reading, and the items read so far are still
// written. Cancellation of ctx stops reading and dispatching; the report
// covers everything read up to that point and Run returns ctx's error.
func (p *Pipeline) Run(ctx context.Context, items iter.Seq2[core.RawItem, error]) (*RunReport, error) {
	spec, err := p.index.DescribeIndex(ctx, p.opts.indexName)
	if err != nil {
		return nil, fmt.Errorf("describing index %q: %w", p.opts.indexName, err)
	}

	report := newRunReport()
	logger := p.logger.With("run", report.RunID)
	logger.Info("ingestion started")

	windowSize := p.opts.chunkSize * p.opts.poolSize
	window := make([]*core.Item, 0, windowSize)

	var sourceErr error
	for raw, err := range items {
		if ctx.Err() != nil {
			break
		}
		report.addRead()

		if err != nil {
			if !errors.Is(err, core.ErrSchema) {
				sourceErr = fmt.Errorf("reading source: %w", err)
				logger.Error("source failed, stopping read", "err", err)
				break
			}
			logger.Warn("skipping malformed source record", "err", err)
			report.fail("", StageRead, err.Error())
			continue
		}

		item := p.normalize(raw, report, logger)
		if item == nil {
			continue
		}
		window = append(window, item)

		if len(window) == windowSize {
			p.processWindow(ctx, window, spec, report, logger)
			window = window[:0]
		}
	}

	if len(window) > 0 {
		if ctx.Err() != nil {
			for _, item := range window {
				report.fail(item.ID, StageEmbed, ReasonCanceled)
			}
		} else {
			p.processWindow(ctx, window, spec, report, logger)
		}
	}

	report.finish()
	logger.Info("ingestion finished",
		"read", report.Read, "null_dates", report.NullDates, "embedded", report.Embedded,
		"upserted", report.Upserted, "failed", report.Failed, "duration", report.Duration())

	if sourceErr != nil {
		return report, sourceErr
	}
	return report, ctx.Err()
}

// normalize decodes one record. A bad date is downgraded to a null date
// with a warning; schema violations fail the item.
func (p *Pipeline) normalize(raw core.RawItem, report *RunReport, logger *slog.Logger) *core.Item {
	item, err := core.DecodeItem(raw)
	if item == nil {
		report.fail(rawID(raw), StageNormalize, err.Error())
		logger.Warn("skipping record that does not fit the item schema", "id", rawID(raw), "err", err)
		return nil
	}
	if err != nil {
		logger.Warn("unparseable created_date, storing null",
			"id", item.ID, "value", raw[core.FieldCreatedDate], "err", err)
	}
	if item.ID == "" && p.opts.contentIDs {
		item.ID = core.ContentID(item)
	}

	if err := core.ValidateItem(item); err != nil {
		report.fail(item.ID, StageNormalize, err.Error())
		logger.Warn("skipping invalid item", "id", item.ID, "err", err)
		return nil
	}

	if item.CreatedDate == nil {
		report.addNullDate()
	}
	return item
}

// processWindow embeds a window of items in concurrent batches and upserts
// the successful ones through the writer.
func (p *Pipeline) processWindow(ctx context.Context, window []*core.Item, spec storage.IndexSpec, report *RunReport, logger *slog.Logger) {
	batches := slices.Collect(slices.Chunk(window, p.opts.embedBatchSize))
	results := make([][]*core.EmbeddingRecord, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		if ctx.Err() != nil {
			for _, item := range batch {
				report.fail(item.ID, StageEmbed, ReasonCanceled)
			}
			continue
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			results[i] = p.embedBatch(ctx, batch, spec.Dimension, report, logger)
		})
		if err != nil {
			wg.Done()
			for _, item := range batch {
				report.fail(item.ID, StageEmbed, err.Error())
			}
		}
	}
	wg.Wait()

	records := slices.Concat(results...)
	if len(records) > 0 {
		ur := p.writer.Upsert(ctx, records)
		report.addUpserted(ur.Written)
		for _, f := range ur.Failed {
			for _, id := range f.IDs {
				report.fail(id, StageUpsert, f.Reason)
			}
		}
	}

	if p.opts.progress != nil {
		p.opts.progress.Increment(len(window))
	}
}

// embedBatch embeds one batch under the retry policy. On exhaustion every
// item in the batch is marked failed.
func (p *Pipeline) embedBatch(ctx context.Context, batch []*core.Item, dim int, report *RunReport, logger *slog.Logger) []*core.EmbeddingRecord {
	texts := make([]string, len(batch))
	for i, item := range batch {
		texts[i] = core.EmbeddingText(item)
	}

	var vectors [][]float32
	out := retry.Do(ctx, p.opts.policy, func(ctx context.Context) error {
		v, err := p.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		got, err := ai.CheckBatch(texts, v)
		if err != nil {
			return err
		}
		if got != dim {
			return fmt.Errorf("%w: embedder returned %d, index expects %d", storage.ErrDimensionMismatch, got, dim)
		}
		vectors = v
		return nil
	})
	if !out.OK() {
		err := fmt.Errorf("%w: after %d attempts: %w", ErrEmbedding, out.Attempts, out.Err)
		logger.Error("embedding batch failed", "items", len(batch), "attempts", out.Attempts, "err", out.Err)
		for _, item := range batch {
			report.fail(item.ID, StageEmbed, err.Error())
		}
		return nil
	}

	records := make([]*core.EmbeddingRecord, len(batch))
	for i, item := range batch {
		records[i] = &core.EmbeddingRecord{
			ID:       item.ID,
			Vector:   ai.NormalizeVector(vectors[i]),
			Metadata: item.Metadata(),
		}
	}
	report.addEmbedded(len(records))
	return records
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// rawID is a best-effort identity for records that failed to decode.
func rawID(raw core.RawItem) string {
	for _, key := range []string{core.FieldID, core.FieldStoreID} {
		if v, ok := raw[key]; ok && v != nil {
			return fmt.Sprint(v)
		}
	}
	return ""
}
