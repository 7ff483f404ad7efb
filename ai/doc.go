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


// Package ai provides abstractions for the embedding service used by itemvec.
//
// The core domain depends on the Embedder interface rather than on a concrete
// client, so the ingestion pipeline, the searcher and the re-embedder can be
// tested without a running model server.
//
// # Interfaces
//
//   - Embedder: Generates vector embeddings from text
//   - AIProvider: Owns an Embedder and knows its output dimension
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embeddings API via langchaingo
//   - ai/mock: Deterministic test doubles
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. Test constructors (mock.NewMockEmbedder) return concrete
// types so tests can inject behavior and inspect call counts.
//
// # Usage Example
//
//	provider, err := openai.NewProvider(ai.NewConfig(
//	    ai.WithEmbeddingHost("http://localhost:11434"),
//	    ai.WithEmbeddingModel("all-minilm"),
//	))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	dim, err := provider.Dimension(ctx)
//	vec, err := provider.Embedder().EmbedText(ctx, "Jacket Warm color:red size:M price:49.99")
package ai
