package core

import (
	"context"
	"sync"

	"pkt.systems/querydesk/schema"
)

type fakeUsers map[schema.UserID]schema.User

func (f fakeUsers) Lookup(id schema.UserID) (schema.User, bool) {
	u, ok := f[id]
	return u, ok
}

func stockUsers() fakeUsers {
	return fakeUsers{
		"admin": {Username: "admin", Email: "admin@donutnaturales.com", Role: "Admin", Key: "Admin"},
		"test1": {Username: "test1", Email: "test1@donutnaturales.com", Role: "Tester", Key: "Test1"},
		"pm":    {Username: "pm", Email: "pm@donutnaturales.com", Role: "ProductManager", Key: "Prod"},
	}
}

// scriptedCompleter answers by system prompt.
type scriptedCompleter struct {
	mu       sync.Mutex
	answers  map[string]string
	errs     map[string]error
	requests []CompletionRequest
}

func newScriptedCompleter(classification string) *scriptedCompleter {
	return &scriptedCompleter{
		answers: map[string]string{
			classifySystem:   classification,
			onboardingSystem: "## Time Off\n- 20 days PTO",
			issueSystem:      `{"title":"Checkout fails","description":"Steps...","labels":["bug"]}`,
			repoSystem:       "## Repository Overview",
		},
		errs: map[string]error{},
	}
}

func (s *scriptedCompleter) Complete(_ context.Context, req CompletionRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if err := s.errs[req.System]; err != nil {
		return "", err
	}
	return s.answers[req.System], nil
}

func (s *scriptedCompleter) bySystem(system string) []CompletionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CompletionRequest
	for _, r := range s.requests {
		if r.System == system {
			out = append(out, r)
		}
	}
	return out
}

type check struct {
	Subject, Operation, Resource string
}

type fakePolicy struct {
	mu       sync.Mutex
	allow    map[check]bool
	syncErr  error
	checkErr error
	synced   []schema.PolicySubject
	checks   []check
}

func newFakePolicy(allowed ...check) *fakePolicy {
	p := &fakePolicy{allow: map[check]bool{}}
	for _, c := range allowed {
		p.allow[c] = true
	}
	return p
}

func (p *fakePolicy) SyncUser(_ context.Context, subject schema.PolicySubject) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.synced = append(p.synced, subject)
	return p.syncErr
}

func (p *fakePolicy) Check(_ context.Context, subject, operation, resource string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := check{subject, operation, resource}
	p.checks = append(p.checks, c)
	if p.checkErr != nil {
		return false, p.checkErr
	}
	return p.allow[c], nil
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeIndex struct {
	matches []Match
	topK    int
}

func (f *fakeIndex) Query(_ context.Context, _ []float32, topK int) ([]Match, error) {
	f.topK = topK
	return f.matches, nil
}

type fakeImages struct {
	images []schema.GeneratedImage
	err    error
	req    ImageRequest
}

func (f *fakeImages) Generate(_ context.Context, req ImageRequest) ([]schema.GeneratedImage, error) {
	f.req = req
	return f.images, f.err
}

type fakeTracker struct {
	drafts []IssueDraft
	err    error
}

func (f *fakeTracker) CreateIssue(_ context.Context, draft IssueDraft) (schema.IssueReceipt, error) {
	f.drafts = append(f.drafts, draft)
	if f.err != nil {
		return schema.IssueReceipt{}, f.err
	}
	return schema.IssueReceipt{Title: draft.Title, URL: "https://github.com/donut/app/issues/1", Number: 1}, nil
}

type fakeIngestor struct {
	digest  string
	err     error
	locator string
}

func (f *fakeIngestor) Digest(_ context.Context, locator string) (string, error) {
	f.locator = locator
	return f.digest, f.err
}

type recordingSink struct {
	mu      sync.Mutex
	results []schema.Result
	ids     []schema.RequestID
}

func (r *recordingSink) OnResult(_ schema.UserID, id schema.RequestID, result schema.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	r.ids = append(r.ids, id)
}
