package storage

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// Metric is the similarity function of an index.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricDotProduct Metric = "dotproduct"
	MetricEuclidean  Metric = "euclidean"
)

// ParseMetric accepts a metric name case-insensitively. An empty name
// selects cosine.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "cosine":
		return MetricCosine, nil
	case "dotproduct", "dot", "dot_product", "inner":
		return MetricDotProduct, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	}
	return "", fmt.Errorf("%w: unknown metric %q", ErrInvalidIndexSpec, s)
}

// Score compares two vectors of equal length. Higher is more similar:
// cosine similarity, raw dot product, or negated euclidean distance.
func (m Metric) Score(a, b []float32) float32 {
	switch m {
	case MetricDotProduct:
		return dot(a, b)
	case MetricEuclidean:
		return -euclidean(a, b)
	default:
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(float64(dot(a, b)) / (na * nb))
	}
}

func dot(a, b []float32) float32 {
	var sum float32
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func euclidean(a, b []float32) float32 {
	var sum float64
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,44}$`)

// Validate checks the spec. Index names are lowercase alphanumerics,
// hyphens and underscores, at most 45 characters.
func (s IndexSpec) Validate() error {
	if !indexNamePattern.MatchString(s.Name) {
		return fmt.Errorf("%w: name %q must be lowercase alphanumerics, hyphens or underscores", ErrInvalidIndexSpec, s.Name)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidIndexSpec, s.Dimension)
	}
	if _, err := ParseMetric(string(s.Metric)); err != nil {
		return err
	}
	return nil
}

// Normalized returns the spec with its metric in canonical form and the
// name lowercased.
func (s IndexSpec) Normalized() IndexSpec {
	s.Name = strings.ToLower(strings.TrimSpace(s.Name))
	if m, err := ParseMetric(string(s.Metric)); err == nil {
		s.Metric = m
	}
	return s
}

// Compatible returns ErrIndexConflict if other describes the same index
// with a different dimension or metric.
func (s IndexSpec) Compatible(other IndexSpec) error {
	if s.Dimension != other.Dimension || s.Metric != other.Metric {
		return fmt.Errorf("%w: %q is %d/%s, requested %d/%s",
			ErrIndexConflict, s.Name, s.Dimension, s.Metric, other.Dimension, other.Metric)
	}
	return nil
}

// CheckDimension returns ErrDimensionMismatch unless len(v) == dim.
func CheckDimension(v []float32, dim int) error {
	if len(v) != dim {
		return fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(v), dim)
	}
	return nil
}
