package reembed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/itemvec/ai"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/retry"
	"github.com/poiesic/itemvec/storage"
)

// BatchProcessor re-embeds batches of stored records into a target index.
type BatchProcessor struct {
	index    storage.VectorIndex
	target   string
	embedder ai.Embedder
	policy   retry.Policy
	logger   *slog.Logger
}

// NewBatchProcessor creates a new batch processor writing to the target index.
func NewBatchProcessor(index storage.VectorIndex, target string, embedder ai.Embedder, policy retry.Policy) *BatchProcessor {
	return &BatchProcessor{
		index:    index,
		target:   target,
		embedder: embedder,
		policy:   policy,
		logger:   slog.Default().With("component", "reembed"),
	}
}

// Process re-embeds records and upserts them into the target index with
// their metadata unchanged. Records whose metadata no longer decodes are
// skipped. It returns the number of records written.
func (bp *BatchProcessor) Process(ctx context.Context, records []*core.EmbeddingRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	texts := make([]string, 0, len(records))
	kept := make([]*core.EmbeddingRecord, 0, len(records))
	for _, rec := range records {
		text, err := core.EmbeddingTextFor(core.RawItem(rec.Metadata))
		if err != nil {
			bp.logger.Warn("skipping record", "id", rec.ID, "error", fmt.Errorf("%w: %v", ErrUndecodableRecord, err))
			continue
		}
		texts = append(texts, text)
		kept = append(kept, rec)
	}
	if len(kept) == 0 {
		return 0, nil
	}

	var embeddings [][]float32
	out := retry.Do(ctx, bp.policy, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		_, err = ai.CheckBatch(texts, embeddings)
		return err
	})
	if !out.OK() {
		return 0, fmt.Errorf("failed to generate embeddings after %d attempts: %w", out.Attempts, out.Err)
	}

	spec, err := bp.index.DescribeIndex(ctx, bp.target)
	if err != nil {
		return 0, err
	}
	if err := storage.CheckDimension(embeddings[0], spec.Dimension); err != nil {
		return 0, fmt.Errorf("target index %q: %w", bp.target, err)
	}

	updated := make([]*core.EmbeddingRecord, len(kept))
	for i, rec := range kept {
		updated[i] = &core.EmbeddingRecord{
			ID:       rec.ID,
			Vector:   ai.NormalizeVector(embeddings[i]),
			Metadata: rec.Metadata,
		}
	}

	out = retry.Do(ctx, bp.policy, func(ctx context.Context) error {
		return bp.index.Upsert(ctx, bp.target, updated...)
	})
	if !out.OK() {
		return 0, fmt.Errorf("failed to update records: %w", out.Err)
	}
	return len(updated), nil
}
