package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultOpenAIEmbeddingModel = openai.SmallEmbedding3
)

// OpenAICompleter implements the Completer interface using the OpenAI API.
type OpenAICompleter struct {
	client *openai.Client
	model  string
}

// NewOpenAICompleter creates a new OpenAICompleter.
// If model is empty, it defaults to gpt-4o-mini. A non-empty baseURL points
// the client at an OpenAI-compatible endpoint.
func NewOpenAICompleter(apiKey, model, baseURL string) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return newOpenAICompleterWithClient(openai.NewClientWithConfig(cfg), model)
}

func newOpenAICompleterWithClient(client *openai.Client, model string) *OpenAICompleter {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAICompleter{
		client: client,
		model:  model,
	}
}

// openAITemperature maps a requested temperature onto the request field.
// go-openai omits a zero temperature from the payload (the API then applies
// its default of 1), so zero is sent as the smallest positive float.
func openAITemperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

// Complete sends a prompt to OpenAI and returns the text completion.
func (o *OpenAICompleter) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		MaxTokens:   maxTokens,
		Temperature: openAITemperature(opts.Temperature),
	}
	if opts.JSON {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(ctx, "openai completion", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrInvalidResponse)
	}

	return resp.Choices[0].Message.Content, nil
}

// OpenAIEmbedder implements the Embedder interface using the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates a new OpenAIEmbedder. Unknown model names fall
// back to text-embedding-3-small.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	return newOpenAIEmbedderWithClient(openai.NewClient(apiKey), model)
}

func newOpenAIEmbedderWithClient(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client: client,
		model:  embeddingModel(model),
	}
}

func embeddingModel(name string) openai.EmbeddingModel {
	switch openai.EmbeddingModel(name) {
	case openai.SmallEmbedding3, openai.LargeEmbedding3, openai.AdaEmbeddingV2:
		return openai.EmbeddingModel(name)
	default:
		return defaultOpenAIEmbeddingModel
	}
}

// Embed returns a vector embedding for the given text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot embed empty text")
	}
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in a single API call. Results follow the order
// of texts regardless of the order the API lists them in.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: e.model,
	})
	if err != nil {
		return nil, classifyOpenAIError(ctx, "openai embedding", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrInvalidResponse, len(texts), len(resp.Data))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrInvalidResponse, d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func classifyOpenAIError(ctx context.Context, op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == 429 {
			return fmt.Errorf("%w: %s", ErrRateLimit, err)
		}
		if apiErr.HTTPStatusCode == 408 || apiErr.HTTPStatusCode == 504 {
			return fmt.Errorf("%w: %s", ErrTimeout, err)
		}
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %s", ErrTimeout, ctx.Err())
	}
	return fmt.Errorf("%s: %w", op, err)
}
