package ingestion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"

	"github.com/poiesic/itemvec/ai/mock"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/progress"
	"github.com/poiesic/itemvec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(t *testing.T, idx storage.VectorIndex, embedder *mock.MockEmbedder, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(fastRetry), WithPoolSize(2)}, opts...)
	p, err := NewPipeline(idx, mock.NewMockProviderWithEmbedder(embedder), opts...)
	require.NoError(t, err)
	t.Cleanup(p.Release)
	return p
}

func catalogItem(id, name string, created any) core.RawItem {
	return core.RawItem{
		"id":           id,
		"name":         name,
		"description":  "a " + name,
		"color":        "blue",
		"size":         "M",
		"price":        49.99,
		"created_date": created,
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(nil, mock.NewMockProvider())
	assert.ErrorIs(t, err, ErrVectorIndexRequired)

	_, err = NewPipeline(newTestIndex(t), nil)
	assert.ErrorIs(t, err, ErrAIProviderRequired)

	_, err = NewPipeline(newTestIndex(t), mock.NewMockProvider(), WithEmbedBatchSize(-1))
	assert.ErrorIs(t, err, ErrInvalidBatchSize)
}

func TestPipeline_IngestStoresNormalizedMetadata(t *testing.T) {
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, mock.NewMockEmbedderWithDimension(testDim))
	ctx := context.Background()

	report, err := p.Ingest(ctx, []core.RawItem{
		catalogItem("1", "Shirt", "2023-05-01T00:00:00Z"),
		catalogItem("2", "Jacket", map[string]any{"$date": "2023-05-01T00:00:00Z"}),
		catalogItem("3", "Scarf", int64(1682899200000)),
		catalogItem("4", "Hat", nil),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 4, report.Read)
	assert.Equal(t, 1, report.NullDates)
	assert.Equal(t, 4, report.Embedded)
	assert.Equal(t, 4, report.Upserted)
	assert.Equal(t, 0, report.Failed)
	assert.Empty(t, report.Failures)

	recs, err := idx.Fetch(ctx, DefaultIndexName, "1", "2", "3", "4")
	require.NoError(t, err)
	require.Len(t, recs, 4)
	for _, rec := range recs[:3] {
		assert.Equal(t, int64(1682899200000), rec.Metadata["created_date"], rec.ID)
	}
	assert.Nil(t, recs[3].Metadata["created_date"])
	assert.Equal(t, "Shirt", recs[0].Metadata["name"])
	assert.Equal(t, 49.99, recs[0].Metadata["price"])
}

func TestPipeline_StoreIdentityFallback(t *testing.T) {
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, mock.NewMockEmbedderWithDimension(testDim))
	ctx := context.Background()

	raw := catalogItem("", "Shirt", nil)
	delete(raw, "id")
	raw["_id"] = "64b0c0ffee"

	report, err := p.Ingest(ctx, []core.RawItem{raw})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Upserted)

	recs, err := idx.Fetch(ctx, DefaultIndexName, "64b0c0ffee")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.NotContains(t, recs[0].Metadata, "_id")
	assert.Equal(t, "64b0c0ffee", recs[0].Metadata["id"])
}

func TestPipeline_VectorsMatchSharedText(t *testing.T) {
	idx := newTestIndex(t)
	embedder := mock.NewMockEmbedderWithDimension(testDim)
	p := newTestPipeline(t, idx, embedder)
	ctx := context.Background()

	_, err := p.Ingest(ctx, []core.RawItem{catalogItem("1", "Shirt", nil)})
	require.NoError(t, err)

	batches := embedder.Batches()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"Shirt a Shirt color:blue size:M price:49.99"}, batches[0])
}

// One unparseable date plus one permanently failing embed batch: only the
// items of the failed batch are reported failed.
func TestPipeline_RunReportWithBadDateAndFailedBatch(t *testing.T) {
	idx := newTestIndex(t)
	embedder := mock.NewMockEmbedderWithDimension(testDim)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if strings.HasPrefix(text, "Poison") {
				return nil, errors.New("backend rejected batch")
			}
			out[i] = mock.GenerateDeterministicVector(text, testDim)
		}
		return out, nil
	}

	p := newTestPipeline(t, idx, embedder, WithEmbedBatchSize(2))

	report, err := p.Ingest(context.Background(), []core.RawItem{
		catalogItem("a", "Alpha", int64(1682899200000)),
		catalogItem("b", "Bravo", "not a date"),
		catalogItem("c", "Charlie", int64(1682899200000)),
		catalogItem("d", "Poison", int64(1682899200000)),
		catalogItem("e", "Echo", int64(1682899200000)),
		catalogItem("f", "Foxtrot", int64(1682899200000)),
	})
	require.NoError(t, err)

	assert.Equal(t, 6, report.Read)
	assert.Equal(t, 1, report.NullDates)
	assert.Equal(t, 4, report.Embedded)
	assert.Equal(t, 4, report.Upserted)
	assert.Equal(t, 2, report.Failed)
	assert.ElementsMatch(t, []string{"c", "d"}, report.FailedIDs())
	for _, f := range report.Failures {
		assert.Equal(t, StageEmbed, f.Stage)
		assert.Contains(t, f.Reason, ErrEmbedding.Error())
	}

	recs, err := idx.Fetch(context.Background(), DefaultIndexName, "b")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Nil(t, recs[0].Metadata["created_date"])
}

func TestPipeline_SchemaFailuresAreCounted(t *testing.T) {
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, mock.NewMockEmbedderWithDimension(testDim))

	noID := catalogItem("", "Nameless", nil)
	delete(noID, "id")
	badPrice := catalogItem("x", "Pricey", nil)
	badPrice["price"] = []int{1}

	report, err := p.Ingest(context.Background(), []core.RawItem{
		noID,
		badPrice,
		catalogItem("ok", "Fine", nil),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Read)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, 1, report.Upserted)
	for _, f := range report.Failures {
		assert.Equal(t, StageNormalize, f.Stage)
	}
	assert.Equal(t, []string{"x"}, report.FailedIDs())
}

func TestPipeline_ContentIDs(t *testing.T) {
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, mock.NewMockEmbedderWithDimension(testDim), WithContentIDs(true))
	ctx := context.Background()

	noID := catalogItem("", "Nameless", "2024-07-12")
	delete(noID, "id")

	for range 2 {
		report, err := p.Ingest(ctx, []core.RawItem{noID})
		require.NoError(t, err)
		assert.Equal(t, 0, report.Failed)
		assert.Equal(t, 1, report.Upserted)
	}

	item, err := core.DecodeItem(noID)
	require.NoError(t, err)
	id := core.ContentID(item)

	count, err := idx.Count(ctx, DefaultIndexName)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "re-ingesting identical content must not duplicate")

	recs, err := idx.Fetch(ctx, DefaultIndexName, id)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, id, recs[0].Metadata[core.FieldID])
}

func TestPipeline_UpsertFailureIsPerChunk(t *testing.T) {
	idx := &recordingIndex{VectorIndex: newTestIndex(t), poisoned: map[string]bool{"i-3": true}}
	p := newTestPipeline(t, idx, mock.NewMockEmbedderWithDimension(testDim), WithChunkSize(2), WithPoolSize(1))

	var raws []core.RawItem
	for i := range 5 {
		raws = append(raws, catalogItem(fmt.Sprintf("i-%d", i), "Item", nil))
	}

	report, err := p.Ingest(context.Background(), raws)
	require.NoError(t, err)

	assert.Equal(t, 5, report.Embedded)
	assert.Equal(t, 3, report.Upserted)
	assert.Equal(t, 2, report.Failed)
	assert.ElementsMatch(t, []string{"i-2", "i-3"}, report.FailedIDs())
	for _, f := range report.Failures {
		assert.Equal(t, StageUpsert, f.Stage)
	}
}

func TestPipeline_DimensionMismatchFailsBatch(t *testing.T) {
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, mock.NewMockEmbedderWithDimension(testDim+1))

	report, err := p.Ingest(context.Background(), []core.RawItem{catalogItem("1", "Shirt", nil)})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Contains(t, report.Failures[0].Reason, storage.ErrDimensionMismatch.Error())
}

func TestPipeline_SourceErrors(t *testing.T) {
	idx := newTestIndex(t)
	p := newTestPipeline(t, idx, mock.NewMockEmbedderWithDimension(testDim))

	seq := func(yield func(core.RawItem, error) bool) {
		if !yield(catalogItem("1", "Shirt", nil), nil) {
			return
		}
		if !yield(nil, fmt.Errorf("%w: line 2: unexpected EOF", core.ErrSchema)) {
			return
		}
		if !yield(catalogItem("3", "Hat", nil), nil) {
			return
		}
		if !yield(nil, errors.New("cursor died")) {
			return
		}
		yield(catalogItem("5", "Never", nil), nil)
	}

	report, err := p.Run(context.Background(), iter.Seq2[core.RawItem, error](seq))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cursor died")

	assert.Equal(t, 4, report.Read)
	assert.Equal(t, 2, report.Upserted)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, StageRead, report.Failures[0].Stage)
}

func TestPipeline_CanceledRun(t *testing.T) {
	idx := &recordingIndex{VectorIndex: newTestIndex(t)}
	embedder := mock.NewMockEmbedderWithDimension(testDim)
	p := newTestPipeline(t, idx, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := p.Ingest(ctx, []core.RawItem{catalogItem("1", "Shirt", nil)})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, 0, report.Read)
	assert.Equal(t, 0, embedder.CallCount())
	assert.Equal(t, 0, idx.callCount())
}

func TestPipeline_MissingIndex(t *testing.T) {
	idx, err := newMemory(t)
	require.NoError(t, err)
	p := newTestPipeline(t, idx, mock.NewMockEmbedderWithDimension(testDim))

	_, err = p.Ingest(context.Background(), nil)
	assert.ErrorIs(t, err, storage.ErrIndexNotFound)
}

func TestPipeline_ReportsProgress(t *testing.T) {
	var buf bytes.Buffer
	tracker := progress.NewTracker(&buf, 3, 1).WithUnit("items")
	tracker.Start()

	p := newTestPipeline(t, newTestIndex(t), mock.NewMockEmbedderWithDimension(testDim), WithProgress(tracker))
	_, err := p.Ingest(context.Background(), []core.RawItem{
		catalogItem("1", "a", nil), catalogItem("2", "b", nil), catalogItem("3", "c", nil),
	})
	require.NoError(t, err)

	assert.Equal(t, 3, tracker.Current())
	assert.Contains(t, buf.String(), "3/3")
}
