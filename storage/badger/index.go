package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/storage"
)

// Index implements storage.VectorIndex on BadgerDB. Similarity search is a
// brute-force scan of the index's key range.
type Index struct {
	backend     *Backend
	ownsBackend bool
	logger      *slog.Logger

	mu    sync.RWMutex
	specs map[string]storage.IndexSpec
}

var _ storage.VectorIndex = (*Index)(nil)

// NewIndex creates a vector index over an open backend. The caller keeps
// ownership of the backend.
func NewIndex(backend *Backend) (storage.VectorIndex, error) {
	return newIndex(backend, false)
}

// Open opens (or creates) a BadgerDB database at path and returns an index
// that closes the database when it is closed.
func Open(path string, inMemory bool) (storage.VectorIndex, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	idx, err := newIndex(backend, true)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return idx, nil
}

func newIndex(backend *Backend, owns bool) (*Index, error) {
	if backend == nil {
		return nil, errors.New("badger index: backend is required")
	}
	return &Index{
		backend:     backend,
		ownsBackend: owns,
		logger:      slog.Default().With("component", "badger-index"),
		specs:       make(map[string]storage.IndexSpec),
	}, nil
}

// EnsureIndex creates the index if absent.
func (x *Index) EnsureIndex(ctx context.Context, spec storage.IndexSpec) (bool, error) {
	spec = spec.Normalized()
	if err := spec.Validate(); err != nil {
		return false, err
	}

	created := false
	err := x.backend.Update(ctx, func(tx *badger.Txn) error {
		existing, err := readSpec(tx, spec.Name)
		if err == nil {
			return existing.Compatible(spec)
		}
		if !errors.Is(err, storage.ErrIndexNotFound) {
			return err
		}

		data, err := storage.MarshalIndexSpec(spec)
		if err != nil {
			return err
		}
		created = true
		return tx.Set(makeIndexMetaKey(spec.Name), data)
	})
	if err != nil {
		return false, err
	}

	x.mu.Lock()
	x.specs[spec.Name] = spec
	x.mu.Unlock()

	if created {
		x.logger.Info("created index", "index", spec.Name, "dimension", spec.Dimension, "metric", spec.Metric)
	}
	return created, nil
}

// DescribeIndex returns the stored spec for name.
func (x *Index) DescribeIndex(ctx context.Context, name string) (storage.IndexSpec, error) {
	x.mu.RLock()
	spec, ok := x.specs[name]
	x.mu.RUnlock()
	if ok {
		return spec, nil
	}

	err := x.backend.View(func(tx *badger.Txn) error {
		var err error
		spec, err = readSpec(tx, name)
		return err
	})
	if err != nil {
		return storage.IndexSpec{}, err
	}

	x.mu.Lock()
	x.specs[name] = spec
	x.mu.Unlock()
	return spec, nil
}

func readSpec(tx *badger.Txn, name string) (storage.IndexSpec, error) {
	item, err := tx.Get(makeIndexMetaKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storage.IndexSpec{}, fmt.Errorf("%w: %q", storage.ErrIndexNotFound, name)
	}
	if err != nil {
		return storage.IndexSpec{}, err
	}
	var spec storage.IndexSpec
	err = item.Value(func(val []byte) error {
		spec, err = storage.UnmarshalIndexSpec(val)
		return err
	})
	return spec, err
}

// Upsert writes all records in one transaction.
func (x *Index) Upsert(ctx context.Context, index string, records ...*core.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	spec, err := x.DescribeIndex(ctx, index)
	if err != nil {
		return err
	}

	entries := make([]struct{ key, value []byte }, 0, len(records))
	for _, rec := range records {
		if rec == nil || rec.ID == "" {
			return fmt.Errorf("%w: record without id", storage.ErrInvalidQuery)
		}
		if err := storage.CheckDimension(rec.Vector, spec.Dimension); err != nil {
			return fmt.Errorf("record %q: %w", rec.ID, err)
		}
		data, err := storage.MarshalRecord(rec)
		if err != nil {
			return err
		}
		entries = append(entries, struct{ key, value []byte }{makeRecordKey(index, rec.ID), data})
	}

	err = x.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, e := range entries {
			if err := tx.Set(e.key, e.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	x.logger.Debug("upserted records", "index", index, "count", len(records))
	return nil
}

// Query scores every record in the index and returns the best q.TopK.
// The recency filter is applied before scoring.
func (x *Index) Query(ctx context.Context, index string, q storage.Query) ([]storage.Match, error) {
	if q.TopK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive, got %d", storage.ErrInvalidQuery, q.TopK)
	}
	spec, err := x.DescribeIndex(ctx, index)
	if err != nil {
		return nil, err
	}
	if err := storage.CheckDimension(q.Vector, spec.Dimension); err != nil {
		return nil, err
	}

	var matches []storage.Match
	err = x.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecordPrefix(index)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}

			var rec *core.EmbeddingRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				rec, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			if len(rec.Vector) == 0 || !q.Filter.Matches(rec.Metadata) {
				continue
			}

			matches = append(matches, storage.Match{
				ID:       rec.ID,
				Score:    spec.Metric.Score(q.Vector, rec.Vector),
				Metadata: rec.Metadata,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by score descending, ties by id for stable output
	slices.SortFunc(matches, func(a, b storage.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})

	if len(matches) > q.TopK {
		matches = matches[:q.TopK]
	}
	return matches, nil
}

// Fetch returns the records stored under ids, skipping missing ones.
func (x *Index) Fetch(ctx context.Context, index string, ids ...string) ([]*core.EmbeddingRecord, error) {
	if _, err := x.DescribeIndex(ctx, index); err != nil {
		return nil, err
	}

	var out []*core.EmbeddingRecord
	err := x.backend.View(func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := tx.Get(makeRecordKey(index, id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			err = item.Value(func(val []byte) error {
				rec, err := storage.UnmarshalRecord(val)
				if err != nil {
					return err
				}
				out = append(out, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// Scan walks the index in key order. Each batch is read in its own
// transaction so fn may write to the store.
func (x *Index) Scan(ctx context.Context, index string, batchSize int, fn func([]*core.EmbeddingRecord) error) error {
	if batchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive", storage.ErrInvalidQuery)
	}
	if _, err := x.DescribeIndex(ctx, index); err != nil {
		return err
	}

	prefix := makeRecordPrefix(index)
	var lastKey []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch := make([]*core.EmbeddingRecord, 0, batchSize)
		err := x.backend.View(func(tx *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			iter := tx.NewIterator(opts)
			defer iter.Close()

			if lastKey == nil {
				iter.Rewind()
			} else {
				iter.Seek(lastKey)
				if iter.Valid() && bytes.Equal(iter.Item().Key(), lastKey) {
					iter.Next()
				}
			}

			for ; iter.Valid() && len(batch) < batchSize; iter.Next() {
				item := iter.Item()
				err := item.Value(func(val []byte) error {
					rec, err := storage.UnmarshalRecord(val)
					if err != nil {
						return err
					}
					batch = append(batch, rec)
					return nil
				})
				if err != nil {
					return err
				}
				lastKey = item.KeyCopy(nil)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		if len(batch) < batchSize {
			return nil
		}
	}
}

// Count returns the number of records in the index.
func (x *Index) Count(ctx context.Context, index string) (int, error) {
	if _, err := x.DescribeIndex(ctx, index); err != nil {
		return 0, err
	}

	count := 0
	err := x.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeRecordPrefix(index)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// SupportsFilter reports true: the recency filter is evaluated exactly
// during the scan.
func (x *Index) SupportsFilter() bool {
	return true
}

// Close closes the backend if the index owns it.
func (x *Index) Close() error {
	if !x.ownsBackend {
		return nil
	}
	return x.backend.Close()
}
