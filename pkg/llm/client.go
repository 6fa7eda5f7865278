package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Client provides access to OpenAI-compatible embedding endpoints.
type Client struct {
	client     *openai.Client
	endpoint   string
	model      string
	dimensions int
	logger     *zap.Logger
}

// Config holds configuration for creating an embedding client.
type Config struct {
	Endpoint   string // Base URL, e.g., "https://api.openai.com/v1"
	Model      string // Embedding model name
	APIKey     string // Optional for local endpoints
	Dimensions int    // Expected vector length; 0 disables the check
}

// NewClient creates a new OpenAI-compatible embedding client.
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		endpoint:   cfg.Endpoint,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     logger.Named("embeddings"),
	}, nil
}

// CreateEmbedding generates an embedding vector for the input text.
// Returns the vector and the tokens consumed. Failures are returned
// as-is; there is no retry at this layer.
func (c *Client) CreateEmbedding(ctx context.Context, input string) ([]float32, int, error) {
	req := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: []string{input},
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	start := time.Now()
	resp, err := c.client.CreateEmbeddings(ctx, req)
	if err != nil {
		c.logger.Error("Embedding request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, 0, fmt.Errorf("create embedding: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, 0, fmt.Errorf("no embedding in response")
	}

	vector := resp.Data[0].Embedding
	if c.dimensions > 0 && len(vector) != c.dimensions {
		return nil, 0, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", c.dimensions, len(vector))
	}

	tokens := resp.Usage.PromptTokens
	if tokens == 0 {
		tokens = resp.Usage.TotalTokens
	}

	c.logger.Debug("Embedding request completed",
		zap.Int("input_len", len(input)),
		zap.Int("tokens", tokens),
		zap.Duration("elapsed", time.Since(start)))

	return vector, tokens, nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string {
	return c.model
}

// GetEndpoint returns the configured endpoint.
func (c *Client) GetEndpoint() string {
	return c.endpoint
}
