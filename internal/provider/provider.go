package provider

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for provider operations.
var (
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrTimeout         = errors.New("request timed out")
	ErrInvalidResponse = errors.New("invalid response from provider")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// Embed returns a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// defaultMaxTokens caps a completion when Options.MaxTokens is zero.
const defaultMaxTokens = 1024

// Options are per-call sampling parameters.
type Options struct {
	// Temperature controls randomness; 0 requests the most deterministic output
	// the provider supports.
	Temperature float64
	// MaxTokens caps the completion length. Zero uses the provider default.
	MaxTokens int
	// JSON asks the provider to constrain output to a JSON object when it
	// supports doing so.
	JSON bool
}

// Completer generates text completions from a prompt.
type Completer interface {
	// Complete returns a text completion for the given prompt.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// Config holds configuration for creating an Embedder or Completer.
type Config struct {
	Type   string
	Model  string
	APIKey string
	URL    string
}

// NewCompleter creates a Completer for cfg.Type.
func NewCompleter(cfg Config) (Completer, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAICompleter(cfg.APIKey, cfg.Model, cfg.URL), nil
	case "anthropic":
		return NewAnthropicCompleter(cfg.APIKey, cfg.Model, cfg.URL), nil
	case "ollama":
		return NewOllamaCompleter(cfg.URL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %q", cfg.Type)
	}
}

// NewEmbedder creates an Embedder for cfg.Type.
func NewEmbedder(cfg Config) (Embedder, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIEmbedder(cfg.APIKey, cfg.Model), nil
	case "ollama":
		return NewOllamaEmbedder(cfg.URL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider type: %q", cfg.Type)
	}
}
