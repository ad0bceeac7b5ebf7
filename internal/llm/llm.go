// Package llm wraps the Gemini API behind two small interfaces: text
// embedding and schema-constrained JSON generation. The rest of the pipeline
// depends on the interfaces, so tests substitute fakes.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"newscrunch/internal/config"
)

// Embedder produces a dense vector for a text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// GenerateOptions tunes one JSON generation call.
type GenerateOptions struct {
	System    string
	Schema    *genai.Schema
	MaxTokens int32
}

// Generator produces schema-constrained JSON from a prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, opts GenerateOptions) (string, error)
}

// Client is the production Embedder and Generator over the Gemini API.
type Client struct {
	gClient *genai.Client
	cfg     config.Gemini
}

// NewClient creates a Gemini client from configuration.
func NewClient(ctx context.Context, cfg config.Gemini) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{gClient: gClient, cfg: cfg}, nil
}

// Embed returns the embedding vector for the text, truncated server-side to
// the configured dimensionality.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if text == "" {
		return nil, fmt.Errorf("embedding input cannot be empty")
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: text}},
		Role:  "user",
	}}
	dims := c.cfg.EmbeddingDimensions
	embedConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	}

	resp, err := c.gClient.Models.EmbedContent(ctx, c.cfg.EmbeddingModel, contents, embedConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, fmt.Errorf("no embedding values returned from API")
	}

	values := resp.Embeddings[0].Values
	embedding := make([]float64, len(values))
	for i, val := range values {
		embedding[i] = float64(val)
	}
	return embedding, nil
}

// GenerateJSON invokes the chat model with a response schema and returns the
// raw JSON text. Decoding parameters are fixed: temperature 1, top-p 1.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, opts GenerateOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}

	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(1)),
		TopP:        genai.Ptr(float32(1)),
	}
	if opts.System != "" {
		genConfig.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: opts.System}},
		}
	}
	if opts.Schema != nil {
		genConfig.ResponseMIMEType = "application/json"
		genConfig.ResponseSchema = opts.Schema
	}
	if opts.MaxTokens > 0 {
		genConfig.MaxOutputTokens = opts.MaxTokens
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.cfg.ChatModel, contents, genConfig)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model")
	}
	return text, nil
}
