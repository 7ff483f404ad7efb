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


package ingestion

import "errors"

var (
	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrInvalidChunkSize is returned for a non-positive upsert chunk size.
	ErrInvalidChunkSize = errors.New("chunk size must be greater than 0")

	// ErrInvalidBatchSize is returned for a non-positive embedding batch size.
	ErrInvalidBatchSize = errors.New("embedding batch size must be greater than 0")

	// ErrEmbedding marks an embedding batch that failed after all retries.
	ErrEmbedding = errors.New("embedding failed")

	// ErrStoreWrite marks an upsert chunk that failed after all retries.
	ErrStoreWrite = errors.New("vector store write failed")
)
