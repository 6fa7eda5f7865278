package llm

import (
	"context"
)

// MockEmbeddingClient is a configurable mock for testing embedding
// consumers. Set CreateEmbeddingFunc to control behavior in tests.
type MockEmbeddingClient struct {
	// CreateEmbeddingFunc is called when CreateEmbedding is invoked.
	// If nil, returns a fixed small vector costing zero tokens.
	CreateEmbeddingFunc func(ctx context.Context, input string) ([]float32, int, error)

	// Model is returned by GetModel. Defaults to "mock-embedding-model".
	Model string

	// Call tracking for verification
	CreateEmbeddingCalls int
	Inputs               []string
}

// NewMockEmbeddingClient creates a new mock with sensible defaults.
func NewMockEmbeddingClient() *MockEmbeddingClient {
	return &MockEmbeddingClient{
		Model: "mock-embedding-model",
	}
}

// CreateEmbedding implements EmbeddingClient.
func (m *MockEmbeddingClient) CreateEmbedding(ctx context.Context, input string) ([]float32, int, error) {
	m.CreateEmbeddingCalls++
	m.Inputs = append(m.Inputs, input)
	if m.CreateEmbeddingFunc != nil {
		return m.CreateEmbeddingFunc(ctx, input)
	}
	return []float32{0.1, 0.2, 0.3}, 0, nil
}

// GetModel implements EmbeddingClient.
func (m *MockEmbeddingClient) GetModel() string {
	if m.Model == "" {
		return "mock-embedding-model"
	}
	return m.Model
}

var _ EmbeddingClient = (*MockEmbeddingClient)(nil)
