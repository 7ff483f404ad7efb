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


// Package search answers "items like this one" queries against a vector
// index.
//
// A query is itself a catalog item. Its embedding text is built with the
// same template used at ingestion, embedded, and matched against the index.
// Results are restricted to items created at or after a recency threshold:
// the restriction is pushed down to indexes that support it and is always
// re-applied to the returned metadata, which tolerates both epoch-ms and
// legacy ISO string dates.
package search
