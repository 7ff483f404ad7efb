package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/poiesic/itemvec/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// fakeEmbeddingServer answers /v1/embeddings with dim-length vectors whose
// first component is the input index.
func fakeEmbeddingServer(t *testing.T, dim int, requests *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		requests.Add(1)

		var req embeddingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string  `json:"object"`
			Data   []datum `json:"data"`
			Model  string  `json:"model"`
		}{Object: "list", Model: req.Model}
		for i := range req.Input {
			vec := make([]float32, dim)
			vec[0] = float32(i)
			resp.Data = append(resp.Data, datum{Object: "embedding", Embedding: vec, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedder_EmbedTexts(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddingServer(t, 4, &requests)
	defer srv.Close()

	cfg := ai.NewConfig(ai.WithEmbeddingHost(srv.URL), ai.WithEmbeddingModel("test-model"), ai.WithBatchSize(2))
	e, err := newEmbedder(cfg, srv.Client())
	require.NoError(t, err)

	vectors, err := e.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 4)
	}
	// Batch size 2 splits three texts into two requests.
	assert.Equal(t, int32(2), requests.Load())
}

func TestEmbedder_EmbedText(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddingServer(t, 8, &requests)
	defer srv.Close()

	e, err := newEmbedder(ai.NewConfig(ai.WithEmbeddingHost(srv.URL)), srv.Client())
	require.NoError(t, err)

	vec, err := e.EmbedText(context.Background(), "Jacket Warm color:red size:M price:49.99")
	require.NoError(t, err)
	assert.Len(t, vec, 8)
}

func TestEmbedder_EmptyInput(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddingServer(t, 4, &requests)
	defer srv.Close()

	e, err := newEmbedder(ai.NewConfig(ai.WithEmbeddingHost(srv.URL)), srv.Client())
	require.NoError(t, err)

	vectors, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, requests.Load())
}

func TestEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model not loaded"}}`, http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e, err := newEmbedder(ai.NewConfig(ai.WithEmbeddingHost(srv.URL)), srv.Client())
	require.NoError(t, err)

	_, err = e.EmbedTexts(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestNewEmbedder_InvalidConfig(t *testing.T) {
	_, err := NewEmbedder(&ai.Config{})
	assert.Error(t, err)
}

func TestProvider_Dimension(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddingServer(t, 16, &requests)
	defer srv.Close()

	p, err := newProvider(ai.NewConfig(ai.WithEmbeddingHost(srv.URL)), srv.Client())
	require.NoError(t, err)
	defer p.Close()

	dim, err := p.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, dim)

	dim, err = p.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, dim)
	assert.Equal(t, int32(1), requests.Load())
	assert.NotNil(t, p.Embedder())
}

func TestProvider_FixedDimension(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddingServer(t, 16, &requests)
	defer srv.Close()

	p, err := newProvider(ai.NewConfig(ai.WithEmbeddingHost(srv.URL), ai.WithDimensions(16)), srv.Client())
	require.NoError(t, err)

	dim, err := p.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 16, dim)
	assert.Zero(t, requests.Load())
}
