package appconfig

import "testing"

func TestDefaultConfigIsValid(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Policy.EmailFallback {
		t.Fatalf("expected email fallback to default false")
	}
}

func TestDefaultGrantsDenyTesterIssues(t *testing.T) {
	for _, grant := range DefaultGrants() {
		if grant.Role == "Tester" && grant.Resource == "github_issues" {
			t.Fatalf("tester must not be granted issue creation")
		}
	}
}
