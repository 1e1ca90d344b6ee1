package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// jsonOnlySystemPrompt stands in for a JSON response mode, which the
// Messages API does not offer.
const jsonOnlySystemPrompt = "Respond with a single JSON object and nothing else."

// AnthropicCompleter implements the Completer interface using the Anthropic API.
type AnthropicCompleter struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicCompleter creates a new AnthropicCompleter.
// If model is empty, it defaults to claude-sonnet-4-20250514. A non-empty
// baseURL points the client at a proxy or gateway.
func NewAnthropicCompleter(apiKey, model, baseURL string) *AnthropicCompleter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return newAnthropicCompleter(model, opts...)
}

func newAnthropicCompleter(model string, opts ...option.RequestOption) *AnthropicCompleter {
	if model == "" {
		model = defaultAnthropicModel
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicCompleter{
		client: &client,
		model:  model,
	}
}

// Complete sends a prompt to Anthropic and returns the text completion.
func (a *AnthropicCompleter) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	maxTokens := int64(opts.MaxTokens)
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if opts.JSON {
		params.System = []anthropic.TextBlockParam{{Text: jsonOnlySystemPrompt}}
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == 429 {
				return "", fmt.Errorf("%w: %s", ErrRateLimit, err)
			}
			if apiErr.StatusCode == 408 || apiErr.StatusCode == 504 {
				return "", fmt.Errorf("%w: %s", ErrTimeout, err)
			}
		}
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %s", ErrTimeout, ctx.Err())
		}
		return "", fmt.Errorf("anthropic completion: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", fmt.Errorf("%w: no text content in response", ErrInvalidResponse)
}
