package format

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"pkt.systems/querydesk/schema"
)

func TestFormatText(t *testing.T) {
	cases := []struct {
		name string
		kind schema.ActionKind
		raw  schema.RawResult
		want string
	}{
		{
			name: "onboarding ok",
			kind: schema.ActionOnboardingQuery,
			raw:  schema.OnboardingAnswer{Query: "pto?", Response: "## PTO\n- 20 days"},
			want: "## PTO\n- 20 days",
		},
		{
			name: "onboarding error",
			kind: schema.ActionOnboardingQuery,
			raw:  schema.OnboardingAnswer{Err: &schema.Fault{Error: "Failed to fetch onboarding information", Details: "timeout"}},
			want: "I apologize, but I encountered an error while searching the onboarding documents: Failed to fetch onboarding information",
		},
		{
			name: "issue ok",
			kind: schema.ActionGitHubIssues,
			raw:  schema.IssueReceipt{Title: "Fix login", URL: "https://github.com/o/r/issues/7", Number: 7},
			want: "I've created a new GitHub issue:\nTitle: Fix login\nURL: https://github.com/o/r/issues/7",
		},
		{
			name: "issue error",
			kind: schema.ActionGitHubIssues,
			raw:  schema.IssueReceipt{Err: &schema.Fault{Error: "Bad credentials"}},
			want: "I apologize, but I encountered an error while creating the GitHub issue: Bad credentials",
		},
		{
			name: "repo ok",
			kind: schema.ActionRepoQuery,
			raw:  schema.RepoSummary{Data: "## Repository Overview"},
			want: "Here's what I found in the codebase:\n## Repository Overview",
		},
		{
			name: "repo error",
			kind: schema.ActionRepoQuery,
			raw:  schema.RepoSummary{Err: &schema.Fault{Error: "GitHub repo URL not configured"}},
			want: "I apologize, but I encountered an error while querying the repository: GitHub repo URL not configured",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Format(tc.kind, tc.raw)
			if got.Message != tc.want {
				t.Fatalf("message: got %q want %q", got.Message, tc.want)
			}
			if got.Images != nil {
				t.Fatalf("text payload should have no images, got %v", got.Images)
			}
		})
	}
}

func TestFormatImages(t *testing.T) {
	got := Format(schema.ActionCreateImage, schema.ImageSet{Data: []schema.GeneratedImage{
		{B64JSON: "aGVsbG8=", RevisedPrompt: "a glazed donut with sprinkles"},
		{B64JSON: "second"},
	}})
	want := schema.Payload{
		Message: "I've generated a delicious donut based on your request! Here's how I interpreted it: a glazed donut with sprinkles",
		Images: []schema.Image{{
			Type:          "image",
			Format:        "base64",
			Data:          "aGVsbG8=",
			RevisedPrompt: "a glazed donut with sprinkles",
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}

	empty := Format(schema.ActionCreateImage, schema.ImageSet{})
	if empty.Message != "I apologize, but no images were generated successfully." || empty.Images == nil || len(empty.Images) != 0 {
		t.Fatalf("unexpected empty payload %+v", empty)
	}

	failed := Format(schema.ActionCreateImage, schema.ImageSet{Err: &schema.Fault{Error: "content policy"}})
	if !strings.HasSuffix(failed.Message, "while generating the image: content policy") || failed.Images == nil {
		t.Fatalf("unexpected error payload %+v", failed)
	}
}

func TestFormatIsTotal(t *testing.T) {
	raws := []schema.RawResult{
		nil,
		schema.OnboardingAnswer{},
		schema.IssueReceipt{},
		schema.RepoSummary{},
		schema.ImageSet{},
	}
	for _, kind := range schema.ActionKinds() {
		for _, raw := range raws {
			got := Format(kind, raw)
			if got.Message == "" && (raw == nil || raw.Kind() != kind) {
				t.Fatalf("expected apology for kind %s raw %T", kind, raw)
			}
			if kind.ResponseKind() == schema.ResponseImage && got.Images == nil {
				t.Fatalf("image kind must carry an image list (raw %T)", raw)
			}
		}
	}
	if got := Format(schema.ActionGitHubIssues, schema.RepoSummary{Data: "x"}); !strings.HasPrefix(got.Message, "I apologize") {
		t.Fatalf("expected mismatch apology, got %q", got.Message)
	}
}
