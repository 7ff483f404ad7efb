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


package search

import (
	"errors"
	"fmt"
)

var (
	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrInvalidTopK is returned for a non-positive result limit.
	ErrInvalidTopK = errors.New("topK must be greater than 0")

	// ErrInvalidQuery is returned for a query object that is not a usable item.
	ErrInvalidQuery = errors.New("invalid query item")

	// ErrSearchUnavailable is returned when the embedding backend or the
	// vector index fails during a search.
	ErrSearchUnavailable = errors.New("search unavailable")
)

// UnavailableError reports which backend failed a search.
type UnavailableError struct {
	Stage string // "embed" or "query"
	Err   error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrSearchUnavailable, e.Stage, e.Err)
}

func (e *UnavailableError) Is(target error) bool { return target == ErrSearchUnavailable }

func (e *UnavailableError) Unwrap() error { return e.Err }
