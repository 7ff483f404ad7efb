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


package core

import (
	"fmt"
	"math"
)

// ValidateItem validates an Item that is about to be stored.
//
// Validation rules:
//   - ID must not be empty (taken from id, falling back to _id)
//   - CreatedDate, when present, must be non-negative
//
// NOT validated:
//   - text fields (empty strings are legal and render as blanks)
//   - Price (optional)
func ValidateItem(item *Item) error {
	if item == nil {
		return &SchemaError{Reason: "item is nil"}
	}
	if item.ID == "" {
		return fmt.Errorf("%w: %w", &SchemaError{Field: FieldID, Reason: "missing id and _id"}, ErrMissingIdentity)
	}
	if item.CreatedDate != nil && *item.CreatedDate < 0 {
		return &SchemaError{Field: FieldCreatedDate, Reason: "negative epoch"}
	}
	return nil
}

// ValidateRecord validates an EmbeddingRecord against the dimension of
// the index it is going to be written to.
func ValidateRecord(rec *EmbeddingRecord, dimension int) error {
	if rec == nil {
		return &SchemaError{Reason: "record is nil"}
	}
	if rec.ID == "" {
		return &SchemaError{Field: FieldID, Reason: "empty vector id"}
	}
	if dimension > 0 && len(rec.Vector) != dimension {
		return &SchemaError{Field: "vector", Reason: fmt.Sprintf("dimension %d, want %d", len(rec.Vector), dimension)}
	}
	for _, v := range rec.Vector {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return &SchemaError{Field: "vector", Reason: "non-finite component"}
		}
	}
	return nil
}
