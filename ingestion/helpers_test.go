package ingestion

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/retry"
	"github.com/poiesic/itemvec/storage"
	"github.com/poiesic/itemvec/storage/badger"
	"github.com/stretchr/testify/require"
)

const testDim = 8

var fastRetry = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Timeout: time.Second}

func newTestIndex(t *testing.T) storage.VectorIndex {
	t.Helper()
	idx, err := badger.NewMemoryIndex()
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	_, err = idx.EnsureIndex(context.Background(), storage.IndexSpec{Name: DefaultIndexName, Dimension: testDim})
	require.NoError(t, err)
	return idx
}

// recordingIndex counts Upsert calls and fails chunks containing a poisoned id.
type recordingIndex struct {
	storage.VectorIndex

	mu       sync.Mutex
	calls    [][]string
	poisoned map[string]bool
}

func (r *recordingIndex) Upsert(ctx context.Context, index string, records ...*core.EmbeddingRecord) error {
	ids := recordIDs(records)
	r.mu.Lock()
	r.calls = append(r.calls, ids)
	r.mu.Unlock()

	for _, id := range ids {
		if r.poisoned[id] {
			return errors.New("write rejected")
		}
	}
	return r.VectorIndex.Upsert(ctx, index, records...)
}

func (r *recordingIndex) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recordingIndex) calledWith(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if slices.Contains(c, id) {
			n++
		}
	}
	return n
}

func newMemory(t *testing.T) (storage.VectorIndex, error) {
	t.Helper()
	idx, err := badger.NewMemoryIndex()
	if err == nil {
		t.Cleanup(func() { idx.Close() })
	}
	return idx, err
}
