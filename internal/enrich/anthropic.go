package enrich

import (
	"context"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

// AnthropicCompleter asks Claude for the JSON answer.
type AnthropicCompleter struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicCompleter creates a Claude-backed completer.
func NewAnthropicCompleter(apiKey, model string, maxTokens int) (*AnthropicCompleter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		model = DefaultAnthropicModel
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}

	return &AnthropicCompleter{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}, nil
}

// Complete implements Completer.
func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: anthropic.Float(Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

// Model returns the configured model name.
func (a *AnthropicCompleter) Model() string { return string(a.model) }
