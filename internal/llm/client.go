// Package llm provides language-model access for twind.
//
// It wraps the Gemini API behind a small Client interface, classifies
// generation failures into error kinds, and implements the ordered model
// fallback protocol for quota-class failures.
package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Prompt is a two-part structured prompt: a system instruction and a user turn.
type Prompt struct {
	System string
	User   string
}

// Client is the language-model capability consumed by the core.
type Client interface {
	// GenerateText invokes the named model with the prompt and returns the
	// raw text response.
	GenerateText(ctx context.Context, model string, prompt Prompt) (string, error)

	// EmbedText maps text to a fixed-length vector.
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// GeminiClient is a Client backed by the Gemini API.
type GeminiClient struct {
	client         *genai.Client
	embeddingModel string
}

// NewGeminiClient creates a Gemini-backed client.
//
// The embeddingModel is fixed per client; the generation model is chosen
// per call so the fallback protocol can switch models on the same client.
func NewGeminiClient(ctx context.Context, apiKey, embeddingModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &GeminiClient{
		client:         client,
		embeddingModel: embeddingModel,
	}, nil
}

// GenerateText invokes the named generation model with the prompt.
func (g *GeminiClient) GenerateText(ctx context.Context, model string, prompt Prompt) (string, error) {
	config := &genai.GenerateContentConfig{}
	if prompt.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: prompt.System}},
		}
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt.User), config)
	if err != nil {
		return "", fmt.Errorf("generating content with %s: %w", model, err)
	}

	return resp.Text(), nil
}

// EmbedText returns the embedding vector for the given text.
func (g *GeminiClient) EmbedText(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		{Parts: []*genai.Part{{Text: text}}},
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("embedding content: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("embedding model %s returned no embeddings", g.embeddingModel)
	}

	return resp.Embeddings[0].Values, nil
}

var _ Client = (*GeminiClient)(nil)
