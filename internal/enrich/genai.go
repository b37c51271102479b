package enrich

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GenAICompleter asks Google's Gemini API for a JSON answer.
type GenAICompleter struct {
	client    *genai.Client
	model     string
	maxTokens int32
}

// NewGenAICompleter creates a Gemini-backed completer.
func NewGenAICompleter(ctx context.Context, apiKey, model string, maxTokens int) (*GenAICompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GenAICompleter{client: client, model: model, maxTokens: int32(maxTokens)}, nil
}

// Complete implements Completer.
func (g *GenAICompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](Temperature),
		MaxOutputTokens:  g.maxTokens,
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

// Model returns the configured model name.
func (g *GenAICompleter) Model() string { return g.model }
