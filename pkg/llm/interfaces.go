// Package llm provides the OpenAI-compatible embedding client used to
// vectorize criteria documents.
package llm

import (
	"context"
)

// EmbeddingClient generates embedding vectors for text. The returned
// token count is the provider-reported cost of the call; callers
// accumulate it for billing visibility. Use this interface for
// dependency injection to enable mocking in tests.
type EmbeddingClient interface {
	// CreateEmbedding generates an embedding vector for the input text
	// and returns the tokens consumed by the call.
	CreateEmbedding(ctx context.Context, input string) ([]float32, int, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Ensure Client implements EmbeddingClient at compile time.
var _ EmbeddingClient = (*Client)(nil)
