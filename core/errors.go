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
	"errors"
	"fmt"
)

// Domain validation errors
var (
	// ErrDateParse indicates a created_date value could not be normalized.
	ErrDateParse = errors.New("unparseable created_date")

	// ErrSchema indicates a source record does not match the item schema.
	ErrSchema = errors.New("item schema violation")

	// ErrMissingIdentity indicates an item has neither id nor _id.
	ErrMissingIdentity = errors.New("item has no identity")
)

// DateParseError describes a created_date value that could not be
// normalized. It matches ErrDateParse.
type DateParseError struct {
	Value any
	Err   error
}

func (e *DateParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%T): %v", ErrDateParse, e.Value, e.Value, e.Err)
	}
	return fmt.Sprintf("%s: %v (%T)", ErrDateParse, e.Value, e.Value)
}

func (e *DateParseError) Is(target error) bool { return target == ErrDateParse }

func (e *DateParseError) Unwrap() error { return e.Err }

// SchemaError describes a field that violates the item schema. It matches
// ErrSchema.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrSchema, e.Reason)
	}
	return fmt.Sprintf("%s: field %q: %s", ErrSchema, e.Field, e.Reason)
}

func (e *SchemaError) Is(target error) bool { return target == ErrSchema }
