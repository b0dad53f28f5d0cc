package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pkt.systems/querydesk/schema"
)

const (
	onboardingFailure = "Failed to fetch onboarding information"
	repoNotConfigured = "GitHub repo URL not configured"
	repoFailure       = "Error accessing repository: %v"
)

// backends implements the four action handlers over the pipeline collaborators.
type backends struct {
	cfg  PipelineConfig
	deps PipelineDeps
}

// Handlers returns the handler table for the closed set of action kinds.
func Handlers(cfg PipelineConfig, deps PipelineDeps) map[schema.ActionKind]HandlerFunc {
	b := &backends{cfg: cfg, deps: deps}
	return map[schema.ActionKind]HandlerFunc{
		schema.ActionOnboardingQuery: b.onboarding,
		schema.ActionGitHubIssues:    b.issue,
		schema.ActionRepoQuery:       b.repository,
		schema.ActionCreateImage:     b.image,
	}
}

func (b *backends) onboarding(ctx context.Context, query string) schema.RawResult {
	fail := func(err error) schema.RawResult {
		return schema.OnboardingAnswer{Query: query, Err: &schema.Fault{Error: onboardingFailure, Details: err.Error()}}
	}
	if b.deps.Embedder == nil || b.deps.Index == nil || b.deps.Completer == nil {
		return fail(fmt.Errorf("onboarding search %w", schema.ErrNotConfigured))
	}
	vector, err := b.deps.Embedder.Embed(ctx, query)
	if err != nil {
		return fail(err)
	}
	matches, err := b.deps.Index.Query(ctx, vector, b.cfg.TopK)
	if err != nil {
		return fail(err)
	}
	blocks := make([]string, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, fmt.Sprintf("Section: %s\n%s", sectionLabel(m), m.Text))
	}
	answer, err := b.deps.Completer.Complete(ctx, CompletionRequest{
		System:      onboardingSystem,
		User:        fmt.Sprintf(onboardingPrompt, query, strings.Join(blocks, "\n\n")),
		Temperature: b.cfg.AnswerTemperature,
	})
	if err != nil {
		return fail(err)
	}
	return schema.OnboardingAnswer{Query: query, Response: answer, Source: b.cfg.SourceLabel}
}

func sectionLabel(m Match) string {
	if strings.TrimSpace(m.Section) == "" {
		return "General"
	}
	return fmt.Sprintf("%s. %s", m.Section, m.Title)
}

func (b *backends) issue(ctx context.Context, query string) schema.RawResult {
	if b.deps.Tracker == nil || b.deps.Completer == nil {
		return schema.IssueReceipt{Err: &schema.Fault{Error: fmt.Sprintf("issue tracker %v", schema.ErrNotConfigured)}}
	}
	draft, err := b.draftIssue(ctx, query)
	if err != nil {
		return schema.IssueReceipt{Err: &schema.Fault{Error: err.Error()}}
	}
	receipt, err := b.deps.Tracker.CreateIssue(ctx, draft)
	if err != nil {
		return schema.IssueReceipt{Err: &schema.Fault{Error: err.Error()}}
	}
	return receipt
}

type issueDraftJSON struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Labels      []string `json:"labels"`
}

// draftIssue asks the completion service for an issue draft. A completion
// failure is returned; an unparseable answer yields FallbackDraft.
func (b *backends) draftIssue(ctx context.Context, query string) (IssueDraft, error) {
	answer, err := b.deps.Completer.Complete(ctx, CompletionRequest{
		System:      issueSystem,
		User:        fmt.Sprintf(issuePrompt, query),
		Temperature: b.cfg.AnswerTemperature,
	})
	if err != nil {
		return IssueDraft{}, err
	}
	return ParseIssueDraft(answer, query), nil
}

// ParseIssueDraft decodes a drafted issue, tolerating code fences. Anything
// that does not decode to a titled draft gives FallbackDraft(query).
func ParseIssueDraft(answer, query string) IssueDraft {
	text := strings.ReplaceAll(answer, "```json", "")
	text = strings.ReplaceAll(text, "```", "")
	text = strings.TrimSpace(text)
	var parsed issueDraftJSON
	if err := json.Unmarshal([]byte(text), &parsed); err != nil || strings.TrimSpace(parsed.Title) == "" {
		return FallbackDraft(query)
	}
	labels := parsed.Labels
	if labels == nil {
		labels = []string{}
	}
	return IssueDraft{Title: parsed.Title, Body: parsed.Description, Labels: labels, Assignees: []string{}}
}

// FallbackDraft is the draft filed when the completion answer is unusable.
func FallbackDraft(query string) IssueDraft {
	return IssueDraft{
		Title:     query,
		Body:      "Auto-generated issue from query: " + query,
		Labels:    []string{"needs-triage"},
		Assignees: []string{},
	}
}

func (b *backends) repository(ctx context.Context, query string) schema.RawResult {
	if strings.TrimSpace(b.cfg.RepositoryURL) == "" {
		return schema.RepoSummary{Err: &schema.Fault{Error: repoNotConfigured}}
	}
	if b.deps.Ingestor == nil || b.deps.Completer == nil {
		return schema.RepoSummary{Err: &schema.Fault{Error: fmt.Sprintf(repoFailure, fmt.Errorf("ingestor %w", schema.ErrNotConfigured))}}
	}
	digest, err := b.deps.Ingestor.Digest(ctx, b.cfg.RepositoryURL)
	if err != nil {
		return schema.RepoSummary{Err: &schema.Fault{Error: fmt.Sprintf(repoFailure, err)}}
	}
	answer, err := b.deps.Completer.Complete(ctx, CompletionRequest{
		System:      repoSystem,
		User:        fmt.Sprintf(repoPrompt, query, digest),
		Temperature: b.cfg.AnswerTemperature,
	})
	if err != nil {
		return schema.RepoSummary{Err: &schema.Fault{Error: fmt.Sprintf(repoFailure, err)}}
	}
	return schema.RepoSummary{Data: answer, RawData: digest}
}

func (b *backends) image(ctx context.Context, query string) schema.RawResult {
	if b.deps.Images == nil {
		return schema.ImageSet{Err: &schema.Fault{Error: fmt.Sprintf("image generation %v", schema.ErrNotConfigured)}}
	}
	images, err := b.deps.Images.Generate(ctx, ImageRequest{Prompt: query, N: 1, Size: b.cfg.ImageSize})
	if err != nil {
		return schema.ImageSet{Err: &schema.Fault{Error: err.Error()}}
	}
	if images == nil {
		images = []schema.GeneratedImage{}
	}
	return schema.ImageSet{Data: images}
}
