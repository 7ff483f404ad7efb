// Package mock provides test double implementations of AI service interfaces.
//
// # Usage in Tests
//
//	mockEmbedder := mock.NewMockEmbedderWithDimension(8)
//	mockEmbedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, errors.New("backend down")
//	}
//	provider := mock.NewMockProviderWithEmbedder(mockEmbedder)
//
//	count := mockEmbedder.CallCount()
//
// # Default Behavior
//
// MockEmbedder returns deterministic unit vectors seeded by an FNV hash of
// the text, so identical texts always embed identically.
package mock
