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


package reembed

import (
	"context"

	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/storage"
)

const (
	// DefaultBatchSize is the default number of records to fetch in each batch
	DefaultBatchSize = 100
)

// RecordIterator walks every record of one index in batches.
type RecordIterator struct {
	index     storage.VectorIndex
	name      string
	batchSize int
}

// NewRecordIterator creates a new record iterator.
// batchSize: number of records to fetch in each batch; non-positive means DefaultBatchSize
func NewRecordIterator(index storage.VectorIndex, name string, batchSize int) *RecordIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &RecordIterator{
		index:     index,
		name:      name,
		batchSize: batchSize,
	}
}

// ForEach calls fn for each batch in id order. Iteration stops on the
// first error from fn. Context cancellation is checked between batches.
func (it *RecordIterator) ForEach(ctx context.Context, fn func([]*core.EmbeddingRecord) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return it.index.Scan(ctx, it.name, it.batchSize, func(batch []*core.EmbeddingRecord) error {
		if err := fn(batch); err != nil {
			return err
		}
		return ctx.Err()
	})
}
