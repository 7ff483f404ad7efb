package reembed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/poiesic/itemvec/ai/mock"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceRecords(t *testing.T, idx storage.VectorIndex, ids ...string) []*core.EmbeddingRecord {
	t.Helper()
	recs, err := idx.Fetch(context.Background(), sourceIndex, ids...)
	require.NoError(t, err)
	require.Len(t, recs, len(ids))
	return recs
}

func TestBatchProcessor_Process(t *testing.T) {
	ctx := context.Background()
	idx := setupIndex(t, 3)
	bp := NewBatchProcessor(idx, targetIndex, mock.NewMockEmbedderWithDimension(targetDim), testConfig().Policy)

	n, err := bp.Process(ctx, sourceRecords(t, idx, "1", "2", "3"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := idx.Count(ctx, targetIndex)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	idx := setupIndex(t, 0)
	embedder := mock.NewMockEmbedderWithDimension(targetDim)
	bp := NewBatchProcessor(idx, targetIndex, embedder, testConfig().Policy)

	n, err := bp.Process(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_EmbeddingError(t *testing.T) {
	idx := setupIndex(t, 2)
	embedder := mock.NewMockEmbedderWithDimension(targetDim)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("model unavailable")
	}
	bp := NewBatchProcessor(idx, targetIndex, embedder, testConfig().Policy)

	_, err := bp.Process(context.Background(), sourceRecords(t, idx, "1", "2"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Equal(t, 2, embedder.CallCount())
}

func TestBatchProcessor_Retry(t *testing.T) {
	idx := setupIndex(t, 2)
	embedder := mock.NewMockEmbedderWithDimension(targetDim)

	var calls atomic.Int32
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("transient")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = mock.GenerateDeterministicVector(text, targetDim)
		}
		return out, nil
	}
	bp := NewBatchProcessor(idx, targetIndex, embedder, testConfig().Policy)

	n, err := bp.Process(context.Background(), sourceRecords(t, idx, "1", "2"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.EqualValues(t, 2, calls.Load())
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	idx := setupIndex(t, 2)
	embedder := mock.NewMockEmbedderWithDimension(targetDim)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{mock.GenerateDeterministicVector("x", targetDim)}, nil
	}
	bp := NewBatchProcessor(idx, targetIndex, embedder, testConfig().Policy)

	_, err := bp.Process(context.Background(), sourceRecords(t, idx, "1", "2"))
	require.Error(t, err)

	count, err := idx.Count(context.Background(), targetIndex)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBatchProcessor_VectorNormalization(t *testing.T) {
	ctx := context.Background()
	idx := setupIndex(t, 1)
	embedder := mock.NewMockEmbedderWithDimension(targetDim)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 2, 2, 0, 0, 0, 0, 0}}, nil
	}
	bp := NewBatchProcessor(idx, targetIndex, embedder, testConfig().Policy)

	_, err := bp.Process(ctx, sourceRecords(t, idx, "1"))
	require.NoError(t, err)

	recs, err := idx.Fetch(ctx, targetIndex, "1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDeltaSlice(t, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3, 0, 0, 0, 0, 0}, recs[0].Vector, 0.0001)
}
