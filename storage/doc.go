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


// Package storage provides the vector index abstraction used by itemvec.
//
// VectorIndex decouples the ingestion pipeline and the searcher from the
// index backend. Two implementations are provided:
//
//   - storage/badger: an embedded BadgerDB index with brute-force scoring
//   - storage/pgvector: PostgreSQL with the pgvector extension
//
// # Constructor Return Type Pattern
//
// Public constructors return the storage.VectorIndex interface:
//
//	idx, err := badger.Open("/path/to/db", false)  // returns storage.VectorIndex
//
// # Records
//
// An index stores core.EmbeddingRecord values keyed by id. Upsert is
// atomic per call and replaces whole records, so re-ingesting the same
// items is idempotent. Metadata is persisted as JSON-compatible values;
// PlainMetadata converts driver types before they reach a backend.
//
// # Filtering
//
// Query accepts an optional RecencyFilter. Backends that report
// SupportsFilter apply it server-side; callers are expected to apply
// RecencyFilter.Matches to the results as well, since a backend may only
// be able to pre-filter some date representations.
//
// # Usage
//
//	idx, err := badger.NewMemoryIndex()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
//	created, err := idx.EnsureIndex(ctx, storage.IndexSpec{Name: "items", Dimension: 384, Metric: storage.MetricCosine})
//	err = idx.Upsert(ctx, "items", records...)
//	matches, err := idx.Query(ctx, "items", storage.Query{Vector: v, TopK: 10})
package storage
