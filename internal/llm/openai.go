// Package llm talks to an OpenAI-compatible API for completions, embeddings
// and image generation.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/schema"
)

// Config configures the OpenAI client.
type Config struct {
	APIKey          string
	BaseURL         string
	CompletionModel string
	EmbeddingModel  string
	ImageModel      string
	Timeout         time.Duration
	HTTPClient      *http.Client
}

// Client implements core.Completer, core.Embedder and core.ImageGenerator.
type Client struct {
	api openai.Client
	cfg Config
}

// New constructs a client. Retries are disabled; a failed call is terminal
// for the request that made it.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm api key: %w", schema.ErrNotConfigured)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return &Client{api: openai.NewClient(opts...), cfg: cfg}, nil
}

// Complete implements core.Completer.
func (c *Client) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	log := pslog.Ctx(ctx)
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))
	started := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       c.cfg.CompletionModel,
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	})
	if err != nil {
		log.Warn("llm completion failed", "model", c.cfg.CompletionModel, "err", err, "duration_ms", time.Since(started).Milliseconds())
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: %w: no choices returned", schema.ErrUpstream)
	}
	log.Debug("llm completion ok", "model", c.cfg.CompletionModel, "tokens", resp.Usage.TotalTokens, "duration_ms", time.Since(started).Milliseconds())
	return resp.Choices[0].Message.Content, nil
}

// Embed implements core.Embedder.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model: c.cfg.EmbeddingModel,
	})
	if err != nil {
		pslog.Ctx(ctx).Warn("llm embedding failed", "model", c.cfg.EmbeddingModel, "err", err)
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding: %w: no vectors returned", schema.ErrUpstream)
	}
	values := resp.Data[0].Embedding
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out, nil
}

// Generate implements core.ImageGenerator.
func (c *Client) Generate(ctx context.Context, req core.ImageRequest) ([]schema.GeneratedImage, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("image prompt is required")
	}
	n := req.N
	if n <= 0 {
		n = 1
	}
	params := openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          c.cfg.ImageModel,
		N:              openai.Int(int64(n)),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	}
	if req.Size != "" {
		params.Size = openai.ImageGenerateParamsSize(req.Size)
	}
	started := time.Now()
	resp, err := c.api.Images.Generate(ctx, params)
	if err != nil {
		pslog.Ctx(ctx).Warn("llm image generation failed", "model", c.cfg.ImageModel, "err", err, "duration_ms", time.Since(started).Milliseconds())
		return nil, fmt.Errorf("image generation: %w", err)
	}
	images := make([]schema.GeneratedImage, 0, len(resp.Data))
	for _, img := range resp.Data {
		if img.B64JSON == "" {
			continue
		}
		images = append(images, schema.GeneratedImage{B64JSON: img.B64JSON, RevisedPrompt: img.RevisedPrompt})
	}
	pslog.Ctx(ctx).Debug("llm image generation ok", "model", c.cfg.ImageModel, "images", len(images), "duration_ms", time.Since(started).Milliseconds())
	return images, nil
}
