package reembed

import "errors"

var (
	// ErrVectorIndexRequired is returned when no vector index is supplied.
	ErrVectorIndexRequired = errors.New("vector index is required")

	// ErrEmbedderRequired is returned when no embedder is supplied.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrIndexNameRequired is returned when the source or target index name is empty.
	ErrIndexNameRequired = errors.New("source and target index names are required")

	// ErrUndecodableRecord marks a stored record whose metadata no longer
	// decodes as a catalog item.
	ErrUndecodableRecord = errors.New("stored metadata is not a catalog item")
)
