// Package tracker files issues in a GitHub repository.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v75/github"
	"golang.org/x/oauth2"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/core"
	"pkt.systems/querydesk/internal/repo"
	"pkt.systems/querydesk/schema"
)

// Config configures the GitHub issue tracker.
type Config struct {
	APIURL string
	// Repo is "owner/name" or any repository URL form.
	Repo       string
	Token      string
	HTTPClient *http.Client
}

// GitHub implements core.IssueTracker.
type GitHub struct {
	issues *github.IssuesService
	owner  string
	name   string
}

// NewGitHub constructs a tracker for one repository.
func NewGitHub(cfg Config) (*GitHub, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, fmt.Errorf("github token: %w", schema.ErrNotConfigured)
	}
	slug, err := repo.Slug(cfg.Repo)
	if err != nil {
		return nil, fmt.Errorf("github repo: %w", err)
	}
	owner, name, _ := strings.Cut(slug, "/")
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	client := github.NewClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})))
	if api := strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"); api != "" {
		base, err := url.Parse(api + "/")
		if err != nil {
			return nil, fmt.Errorf("github api url: %w", err)
		}
		client.BaseURL = base
	}
	return &GitHub{issues: client.Issues, owner: owner, name: name}, nil
}

// CreateIssue posts the draft and returns the created issue.
func (g *GitHub) CreateIssue(ctx context.Context, draft core.IssueDraft) (schema.IssueReceipt, error) {
	labels := draft.Labels
	if labels == nil {
		labels = []string{}
	}
	assignees := draft.Assignees
	if assignees == nil {
		assignees = []string{}
	}
	issue, _, err := g.issues.Create(ctx, g.owner, g.name, &github.IssueRequest{
		Title:     github.Ptr(draft.Title),
		Body:      github.Ptr(draft.Body),
		Labels:    &labels,
		Assignees: &assignees,
	})
	if err != nil {
		var apiErr *github.ErrorResponse
		if errors.As(err, &apiErr) {
			status := 0
			if apiErr.Response != nil {
				status = apiErr.Response.StatusCode
			}
			pslog.Ctx(ctx).Warn("github create issue failed", "status", status, "message", apiErr.Message)
			return schema.IssueReceipt{}, fmt.Errorf("create issue: %w: status %d: %s", schema.ErrUpstream, status, apiErr.Message)
		}
		return schema.IssueReceipt{}, fmt.Errorf("create issue: %w", err)
	}
	receipt := schema.IssueReceipt{
		Title:  issue.GetTitle(),
		URL:    issue.GetHTMLURL(),
		Number: issue.GetNumber(),
	}
	pslog.Ctx(ctx).Info("github issue created", "number", receipt.Number, "url", receipt.URL)
	return receipt, nil
}
