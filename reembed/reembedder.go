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
	"fmt"
	"io"
	"time"

	"github.com/poiesic/itemvec/ai"
	"github.com/poiesic/itemvec/core"
	"github.com/poiesic/itemvec/progress"
	"github.com/poiesic/itemvec/retry"
	"github.com/poiesic/itemvec/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of records to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of records)
	ReportInterval int

	// Policy bounds the retries of each embedding call and each write
	Policy retry.Policy
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		Policy:         retry.DefaultPolicy(),
	}
}

// Result summarizes a completed run.
type Result struct {
	Source    string
	Target    string
	Total     int
	Processed int
	Skipped   int
	Elapsed   time.Duration
}

// Reembedder re-embeds every record of a source index into a target index.
type Reembedder struct {
	index     storage.VectorIndex
	source    string
	target    string
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *RecordIterator
}

// NewReembedder creates a new reembedder. The target index must already
// exist with the embedder's dimension.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(index storage.VectorIndex, source, target string, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if source == "" || target == "" {
		return nil, ErrIndexNameRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Policy.MaxAttempts <= 0 {
		return nil, retry.ErrInvalidMaxAttempts
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		index:     index,
		source:    source,
		target:    target,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(index, target, embedder, config.Policy),
		iterator:  NewRecordIterator(index, source, config.BatchSize),
	}, nil
}

// Run executes the reembedding operation. It stops at the first batch that
// cannot be embedded or written; records already written stay in the
// target index, so a rerun converges.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	result := &Result{Source: r.source, Target: r.target}

	if _, err := r.index.DescribeIndex(ctx, r.target); err != nil {
		return result, fmt.Errorf("target index: %w", err)
	}
	total, err := r.index.Count(ctx, r.source)
	if err != nil {
		return result, fmt.Errorf("failed to count records: %w", err)
	}
	result.Total = total

	if total == 0 {
		fmt.Fprintf(r.progress, "No records found in index %q (0 records)\n", r.source)
		return result, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d records from %q into %q (batch size: %d)\n",
		total, r.source, r.target, r.iterator.batchSize)

	tracker := progress.NewTracker(r.progress, total, r.config.ReportInterval).WithUnit("items")
	tracker.Start()

	err = r.iterator.ForEach(ctx, func(records []*core.EmbeddingRecord) error {
		n, err := r.processor.Process(ctx, records)
		if err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		result.Processed += n
		result.Skipped += len(records) - n
		tracker.Increment(len(records))
		return nil
	})
	result.Elapsed = tracker.Elapsed()
	if err != nil {
		return result, err
	}

	tracker.Finish()

	elapsed := result.Elapsed
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d records in %v (%.1f records/sec)\n",
		result.Processed, elapsed.Round(time.Second), float64(result.Processed)/max(elapsed.Seconds(), 1e-9))
	return result, nil
}
