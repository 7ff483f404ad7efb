package ai

import (
	"context"
	"fmt"
	"sync"
)

// dimensionProbeText is embedded once to learn the backend's vector length.
const dimensionProbeText = "dimension probe"

// DimensionProber discovers an embedder's output dimension with a single
// probe request and caches the result. A failed probe is not cached.
type DimensionProber struct {
	embedder Embedder
	fixed    int

	mu  sync.Mutex
	dim int
}

// NewDimensionProber creates a prober. A positive fixed dimension skips the probe.
func NewDimensionProber(embedder Embedder, fixed int) *DimensionProber {
	return &DimensionProber{embedder: embedder, fixed: fixed}
}

// Dimension returns the cached dimension, probing the embedder on first use.
func (p *DimensionProber) Dimension(ctx context.Context) (int, error) {
	if p.fixed > 0 {
		return p.fixed, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dim > 0 {
		return p.dim, nil
	}

	vec, err := p.embedder.EmbedText(ctx, dimensionProbeText)
	if err != nil {
		return 0, fmt.Errorf("probing embedding dimension: %w", err)
	}
	if len(vec) == 0 {
		return 0, fmt.Errorf("probing embedding dimension: %w", ErrEmptyEmbedding)
	}
	p.dim = len(vec)
	return p.dim, nil
}
