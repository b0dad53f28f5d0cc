package core

import (
	"context"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/schema"
)

// CompletionRequest is a single system+user exchange with a completion service.
type CompletionRequest struct {
	System      string
	User        string
	Temperature float64
}

// Completer returns one text completion for a request.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

// Complete implements Completer.
func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Match is one ranked vector index hit.
type Match struct {
	ID      string
	Score   float64
	Section string
	Title   string
	Text    string
}

// VectorIndex answers nearest-neighbour queries.
type VectorIndex interface {
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// ImageRequest describes an image generation call.
type ImageRequest struct {
	Prompt string
	N      int
	Size   string
}

// ImageGenerator produces base64 images from a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, req ImageRequest) ([]schema.GeneratedImage, error)
}

// IssueDraft is the body submitted to the issue tracker.
type IssueDraft struct {
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	Labels    []string `json:"labels"`
	Assignees []string `json:"assignees"`
}

// IssueTracker files issues.
type IssueTracker interface {
	CreateIssue(ctx context.Context, draft IssueDraft) (schema.IssueReceipt, error)
}

// PolicyEngine is a policy decision point.
type PolicyEngine interface {
	SyncUser(ctx context.Context, subject schema.PolicySubject) error
	Check(ctx context.Context, subject, operation, resource string) (bool, error)
}

// Ingestor produces a textual digest of a repository.
type Ingestor interface {
	Digest(ctx context.Context, locator string) (string, error)
}

// UserDirectory resolves user identifiers to static records.
type UserDirectory interface {
	Lookup(id schema.UserID) (schema.User, bool)
}

// PipelineConfig carries static pipeline settings.
type PipelineConfig struct {
	TopK              int
	SourceLabel       string
	RepositoryURL     string
	AnswerTemperature float64
	ImageSize         string
	EmailFallback     bool
	LogQueries        bool
}

// PipelineDeps captures the collaborators used by the pipeline. Backend
// collaborators may be nil; the matching action then reports a not
// configured error.
type PipelineDeps struct {
	Users       UserDirectory
	Permissions schema.PermissionMap
	Policy      PolicyEngine
	Completer   Completer
	Embedder    Embedder
	Index       VectorIndex
	Images      ImageGenerator
	Tracker     IssueTracker
	Ingestor    Ingestor
	Sink        ResultSink
	Logger      pslog.Logger
}
