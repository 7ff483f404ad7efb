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


package storage

import "errors"

var (
	// ErrIndexNotFound indicates that the named index does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexConflict indicates an existing index with an incompatible spec.
	ErrIndexConflict = errors.New("index exists with a different spec")

	// ErrInvalidIndexSpec indicates a malformed index spec.
	ErrInvalidIndexSpec = errors.New("invalid index spec")

	// ErrDimensionMismatch indicates a vector of the wrong length for the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrTransactionFailed indicates that a transaction failed.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")
)
