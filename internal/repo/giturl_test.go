package repo

import (
	"errors"
	"testing"

	"pkt.systems/querydesk/schema"
)

func TestParseLocator(t *testing.T) {
	cases := []struct {
		input     string
		wantURL   string
		wantHost  string
		wantSlug  string
		wantError bool
	}{
		{
			input:    "https://github.com/donut/naturales",
			wantURL:  "https://github.com/donut/naturales.git",
			wantHost: "github.com",
			wantSlug: "donut/naturales",
		},
		{
			input:    "https://github.com/donut/naturales.git",
			wantURL:  "https://github.com/donut/naturales.git",
			wantHost: "github.com",
			wantSlug: "donut/naturales",
		},
		{
			input:    "git@github.com:donut/naturales",
			wantURL:  "git@github.com:donut/naturales.git",
			wantHost: "github.com",
			wantSlug: "donut/naturales",
		},
		{
			input:    "ssh://git@gitlab.example.com/group/sub/repo.git",
			wantURL:  "ssh://git@gitlab.example.com/group/sub/repo.git",
			wantHost: "gitlab.example.com",
			wantSlug: "group/sub/repo",
		},
		{
			input:    "github.com/donut/naturales",
			wantURL:  "https://github.com/donut/naturales.git",
			wantHost: "github.com",
			wantSlug: "donut/naturales",
		},
		{
			input:    "donut/naturales",
			wantURL:  "https://github.com/donut/naturales.git",
			wantHost: "github.com",
			wantSlug: "donut/naturales",
		},
		{input: "", wantError: true},
		{input: "invalid", wantError: true},
		{input: "a/b/c/d", wantError: true},
	}
	for _, tc := range cases {
		got, err := ParseLocator(tc.input)
		if tc.wantError {
			if !errors.Is(err, schema.ErrInvalidRepo) {
				t.Fatalf("ParseLocator(%q): expected ErrInvalidRepo, got %v", tc.input, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseLocator(%q): %v", tc.input, err)
		}
		if got.CloneURL != tc.wantURL {
			t.Fatalf("ParseLocator(%q) url: got %q want %q", tc.input, got.CloneURL, tc.wantURL)
		}
		if got.Host != tc.wantHost {
			t.Fatalf("ParseLocator(%q) host: got %q want %q", tc.input, got.Host, tc.wantHost)
		}
		if got.Slug() != tc.wantSlug {
			t.Fatalf("ParseLocator(%q) slug: got %q want %q", tc.input, got.Slug(), tc.wantSlug)
		}
	}
}

func TestParseLocatorLocalDir(t *testing.T) {
	dir := t.TempDir()
	got, err := ParseLocator(dir)
	if err != nil {
		t.Fatalf("ParseLocator: %v", err)
	}
	if !got.Local || got.CloneURL != dir {
		t.Fatalf("expected local locator for %s, got %+v", dir, got)
	}
	if _, err := Slug(dir); err == nil {
		t.Fatalf("expected slug error for local dir")
	}
}

func TestSlug(t *testing.T) {
	got, err := Slug("https://github.com/donut/app.git")
	if err != nil {
		t.Fatalf("slug: %v", err)
	}
	if got != "donut/app" {
		t.Fatalf("unexpected slug %q", got)
	}
}
