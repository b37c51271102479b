package enrich

import (
	"context"
	"fmt"
	"strings"
)

// Provider names accepted by NewCompleter.
const (
	ProviderNone      = "none"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// NewCompleter builds the completer for a provider name. "none" (or empty)
// returns a nil Completer, which makes the Service fallback-only.
func NewCompleter(ctx context.Context, provider, apiKey, model string, maxTokens int) (Completer, error) {
	switch strings.ToLower(provider) {
	case "", ProviderNone:
		return nil, nil
	case ProviderGemini:
		c, err := NewGenAICompleter(ctx, apiKey, model, maxTokens)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ProviderAnthropic:
		c, err := NewAnthropicCompleter(apiKey, model, maxTokens)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown enrichment provider %q", provider)
	}
}
