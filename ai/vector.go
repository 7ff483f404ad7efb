package ai

import (
	"fmt"
	"math"
)

// NormalizeVector normalizes a vector to unit length.
// Returns a new vector. If the input is a zero vector, returns a zero vector.
func NormalizeVector(v []float32) []float32 {
	if len(v) == 0 {
		return v
	}

	var magnitude float64
	for _, val := range v {
		magnitude += float64(val) * float64(val)
	}
	magnitude = math.Sqrt(magnitude)

	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	for i, val := range v {
		result[i] = float32(float64(val) / magnitude)
	}
	return result
}

// CheckBatch verifies that an embedding response is usable: one non-empty
// vector per input text, all of the same length. It returns that length.
func CheckBatch(texts []string, vectors [][]float32) (int, error) {
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrEmbeddingCount, len(vectors), len(texts))
	}
	dim := 0
	for i, v := range vectors {
		if len(v) == 0 {
			return 0, fmt.Errorf("%w: index %d", ErrEmptyEmbedding, i)
		}
		if dim == 0 {
			dim = len(v)
			continue
		}
		if len(v) != dim {
			return 0, fmt.Errorf("%w: index %d has %d, want %d", ErrInconsistentDimension, i, len(v), dim)
		}
	}
	return dim, nil
}
