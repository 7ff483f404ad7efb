package ingestion

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/itemvec/ai/mock"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeRecords(n int) []*core.EmbeddingRecord {
	records := make([]*core.EmbeddingRecord, n)
	for i := range records {
		id := fmt.Sprintf("item-%03d", i)
		records[i] = &core.EmbeddingRecord{
			ID:       id,
			Vector:   mock.GenerateDeterministicVector(id, testDim),
			Metadata: core.Metadata{"id": id, "created_date": int64(1682899200000)},
		}
	}
	return records
}

func TestNewWriter_Validation(t *testing.T) {
	_, err := NewWriter(nil)
	assert.ErrorIs(t, err, ErrVectorIndexRequired)

	_, err = NewWriter(newTestIndex(t), WithChunkSize(0))
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
}

func TestWriter_ChunkCount(t *testing.T) {
	tests := []struct {
		records, chunkSize, wantCalls int
	}{
		{records: 10, chunkSize: 3, wantCalls: 4},
		{records: 9, chunkSize: 3, wantCalls: 3},
		{records: 1, chunkSize: 500, wantCalls: 1},
		{records: 0, chunkSize: 5, wantCalls: 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d by %d", tt.records, tt.chunkSize), func(t *testing.T) {
			idx := &recordingIndex{VectorIndex: newTestIndex(t)}
			w, err := NewWriter(idx, WithChunkSize(tt.chunkSize), WithPoolSize(2), WithRetryPolicy(fastRetry))
			require.NoError(t, err)
			defer w.Release()

			report := w.Upsert(context.Background(), makeRecords(tt.records))

			assert.True(t, report.OK())
			assert.Equal(t, tt.wantCalls, report.Chunks)
			assert.Equal(t, tt.wantCalls, idx.callCount())
			assert.Equal(t, tt.records, report.Written)

			if tt.records > 0 {
				n, err := idx.Count(context.Background(), DefaultIndexName)
				require.NoError(t, err)
				assert.Equal(t, tt.records, n)
			}
		})
	}
}

func TestWriter_IsolatesFailedChunk(t *testing.T) {
	idx := &recordingIndex{VectorIndex: newTestIndex(t), poisoned: map[string]bool{"item-004": true}}
	w, err := NewWriter(idx, WithChunkSize(3), WithRetryPolicy(fastRetry))
	require.NoError(t, err)
	defer w.Release()

	report := w.Upsert(context.Background(), makeRecords(9))

	require.Len(t, report.Failed, 1)
	failed := report.Failed[0]
	assert.Equal(t, 1, failed.Chunk)
	assert.Equal(t, []string{"item-003", "item-004", "item-005"}, failed.IDs)
	assert.Equal(t, 2, failed.Attempts)
	assert.ErrorIs(t, failed.Err, ErrStoreWrite)
	assert.Equal(t, 6, report.Written)
	assert.Equal(t, 3, report.FailedCount())

	// retried as a whole chunk
	assert.Equal(t, 2, idx.calledWith("item-004"))
	assert.Equal(t, 2, idx.calledWith("item-003"))

	n, err := idx.Count(context.Background(), DefaultIndexName)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestWriter_Idempotent(t *testing.T) {
	idx := newTestIndex(t)
	w, err := NewWriter(idx, WithChunkSize(2))
	require.NoError(t, err)
	defer w.Release()
	ctx := context.Background()

	records := makeRecords(5)
	require.True(t, w.Upsert(ctx, records).OK())
	require.True(t, w.Upsert(ctx, records).OK())

	n, err := idx.Count(ctx, DefaultIndexName)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestWriter_CanceledBeforeDispatch(t *testing.T) {
	idx := &recordingIndex{VectorIndex: newTestIndex(t)}
	w, err := NewWriter(idx, WithChunkSize(2))
	require.NoError(t, err)
	defer w.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := w.Upsert(ctx, makeRecords(5))

	assert.Equal(t, 3, report.Chunks)
	assert.Len(t, report.Failed, 3)
	assert.Equal(t, 0, idx.callCount())
	for _, f := range report.Failed {
		assert.Equal(t, ReasonCanceled, f.Reason)
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
}

func TestWriter_EnsureIndex(t *testing.T) {
	idx, err := newMemory(t)
	require.NoError(t, err)

	w, err := NewWriter(idx, WithIndexName("catalog"))
	require.NoError(t, err)
	defer w.Release()
	ctx := context.Background()

	created, err := w.EnsureIndex(ctx, storage.IndexSpec{Dimension: testDim})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = w.EnsureIndex(ctx, storage.IndexSpec{Dimension: testDim})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = w.EnsureIndex(ctx, storage.IndexSpec{Dimension: testDim + 1})
	assert.ErrorIs(t, err, storage.ErrIndexConflict)

	_, err = w.EnsureIndex(ctx, storage.IndexSpec{Name: "other", Dimension: testDim})
	assert.ErrorIs(t, err, storage.ErrInvalidIndexSpec)
}

func TestWriter_EnsureIndexNormalizesName(t *testing.T) {
	idx, err := newMemory(t)
	require.NoError(t, err)

	w, err := NewWriter(idx, WithIndexName(" Catalog "))
	require.NoError(t, err)
	defer w.Release()
	ctx := context.Background()

	created, err := w.EnsureIndex(ctx, storage.IndexSpec{Name: "CATALOG", Dimension: testDim})
	require.NoError(t, err)
	assert.True(t, created)

	spec, err := idx.DescribeIndex(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, "catalog", spec.Name)

	report := w.Upsert(ctx, []*core.EmbeddingRecord{{ID: "a", Vector: make([]float32, testDim), Metadata: core.Metadata{"id": "a"}}})
	assert.True(t, report.OK())
}
