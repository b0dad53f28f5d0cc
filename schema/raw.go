package schema

// Fault is the error shape a backend handler records instead of failing.
type Fault struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RawResult is the kind-specific output of a backend handler.
// The set of implementations is closed to this package.
type RawResult interface {
	Kind() ActionKind
	Fault() *Fault
	rawResult()
}

// OnboardingAnswer is the result of a vector-search question.
type OnboardingAnswer struct {
	Query    string `json:"query"`
	Response string `json:"response,omitempty"`
	Source   string `json:"source,omitempty"`
	Err      *Fault `json:"-"`
}

// IssueReceipt is the result of filing an issue.
type IssueReceipt struct {
	Title  string `json:"title,omitempty"`
	URL    string `json:"html_url,omitempty"`
	Number int    `json:"number,omitempty"`
	Err    *Fault `json:"-"`
}

// RepoSummary is the result of summarizing a repository.
type RepoSummary struct {
	Data    string `json:"data,omitempty"`
	RawData string `json:"raw_data,omitempty"`
	Err     *Fault `json:"-"`
}

// GeneratedImage is one image returned by the generation service.
type GeneratedImage struct {
	B64JSON       string `json:"b64_json"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageSet is the result of an image generation request.
type ImageSet struct {
	Data []GeneratedImage `json:"data"`
	Err  *Fault           `json:"-"`
}

func (OnboardingAnswer) Kind() ActionKind { return ActionOnboardingQuery }
func (IssueReceipt) Kind() ActionKind     { return ActionGitHubIssues }
func (RepoSummary) Kind() ActionKind      { return ActionRepoQuery }
func (ImageSet) Kind() ActionKind         { return ActionCreateImage }

func (r OnboardingAnswer) Fault() *Fault { return r.Err }
func (r IssueReceipt) Fault() *Fault     { return r.Err }
func (r RepoSummary) Fault() *Fault      { return r.Err }
func (r ImageSet) Fault() *Fault         { return r.Err }

func (OnboardingAnswer) rawResult() {}
func (IssueReceipt) rawResult()     {}
func (RepoSummary) rawResult()      {}
func (ImageSet) rawResult()         {}
