// Package embedding provides the Gemini embedding backend.
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/schema"
)

// Task types understood by the Gemini embedding API.
const (
	TaskRetrievalQuery    = "RETRIEVAL_QUERY"
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-embedding-001"

// Config configures the Gemini embedder.
type Config struct {
	APIKey     string
	Model      string
	TaskType   string
	BaseURL    string
	HTTPClient *http.Client
}

// GenAI implements core.Embedder on top of the Gemini API.
type GenAI struct {
	client   *genai.Client
	model    string
	taskType string
}

// NewGenAI constructs an embedder. An empty task type defaults to query
// embeddings.
func NewGenAI(ctx context.Context, cfg Config) (*GenAI, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key: %w", schema.ErrNotConfigured)
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	task := strings.TrimSpace(cfg.TaskType)
	if task == "" {
		task = TaskRetrievalQuery
	}
	return &GenAI{client: client, model: model, taskType: task}, nil
}

// ForDocuments returns a copy that embeds with the document task type.
func (g *GenAI) ForDocuments() *GenAI {
	cp := *g
	cp.taskType = TaskRetrievalDocument
	return &cp
}

// Embed implements core.Embedder.
func (g *GenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("gemini embedder: %w", schema.ErrNotConfigured)
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	res, err := g.client.Models.EmbedContent(ctx, g.model, contents, &genai.EmbedContentConfig{TaskType: g.taskType})
	if err != nil {
		pslog.Ctx(ctx).Warn("gemini embedding failed", "model", g.model, "err", err)
		return nil, fmt.Errorf("gemini embedding: %w", err)
	}
	if res == nil || len(res.Embeddings) == 0 || res.Embeddings[0] == nil {
		return nil, fmt.Errorf("gemini embedding: %w: no vectors returned", schema.ErrUpstream)
	}
	return res.Embeddings[0].Values, nil
}
