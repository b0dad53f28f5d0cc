// Package repo parses repository locators.
package repo

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"pkt.systems/querydesk/schema"
)

// DefaultHost is assumed for bare owner/name locators.
const DefaultHost = "github.com"

// Locator is a parsed repository reference.
type Locator struct {
	// CloneURL is passed to git clone. For local directories it is the
	// absolute path.
	CloneURL string
	// Host is empty for local directories.
	Host  string
	Owner string
	Name  string
	Local bool
}

// Slug returns "owner/name".
func (l Locator) Slug() string {
	if l.Owner == "" {
		return l.Name
	}
	return l.Owner + "/" + l.Name
}

// ParseLocator accepts https and ssh URLs, scp-style git@host:owner/name,
// host/owner/name, owner/name and existing local directories.
func ParseLocator(raw string) (Locator, error) {
	input := strings.TrimSpace(raw)
	if input == "" {
		return Locator{}, schema.ErrInvalidRepo
	}
	if info, err := os.Stat(input); err == nil && info.IsDir() {
		abs, err := filepath.Abs(input)
		if err != nil {
			return Locator{}, err
		}
		return Locator{CloneURL: abs, Name: filepath.Base(abs), Local: true}, nil
	}
	lower := strings.ToLower(input)

	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "ssh://"), strings.HasPrefix(lower, "file://"):
		parsed, err := url.Parse(input)
		if err != nil {
			return Locator{}, fmt.Errorf("%w: %v", schema.ErrInvalidRepo, err)
		}
		owner, name, err := splitOwnerName(parsed.Path)
		if err != nil {
			return Locator{}, err
		}
		clone := *parsed
		clone.RawQuery = ""
		clone.Fragment = ""
		if parsed.Scheme != "file" {
			clone.Path = "/" + owner + "/" + ensureGitSuffix(name)
			if owner == "" {
				clone.Path = "/" + ensureGitSuffix(name)
			}
		}
		return Locator{CloneURL: clone.String(), Host: parsed.Hostname(), Owner: owner, Name: name}, nil

	case strings.Contains(input, "@") && strings.Contains(input, ":"):
		userHost, rest, ok := strings.Cut(input, ":")
		if !ok || userHost == "" || rest == "" {
			return Locator{}, schema.ErrInvalidRepo
		}
		owner, name, err := splitOwnerName(rest)
		if err != nil {
			return Locator{}, err
		}
		_, host, _ := strings.Cut(userHost, "@")
		return Locator{
			CloneURL: fmt.Sprintf("%s:%s/%s", userHost, owner, ensureGitSuffix(name)),
			Host:     host,
			Owner:    owner,
			Name:     name,
		}, nil

	case strings.Contains(input, "/"):
		parts := strings.Split(strings.Trim(input, "/"), "/")
		host := DefaultHost
		switch len(parts) {
		case 2:
		case 3:
			host = parts[0]
			parts = parts[1:]
		default:
			return Locator{}, schema.ErrInvalidRepo
		}
		owner, name, err := splitOwnerName(strings.Join(parts, "/"))
		if err != nil {
			return Locator{}, err
		}
		return Locator{
			CloneURL: fmt.Sprintf("https://%s/%s/%s", host, owner, ensureGitSuffix(name)),
			Host:     host,
			Owner:    owner,
			Name:     name,
		}, nil
	}
	return Locator{}, schema.ErrInvalidRepo
}

// Slug parses raw and returns its "owner/name" form.
func Slug(raw string) (string, error) {
	loc, err := ParseLocator(raw)
	if err != nil {
		return "", err
	}
	if loc.Local || loc.Owner == "" {
		return "", fmt.Errorf("%w: %s has no owner", schema.ErrInvalidRepo, raw)
	}
	return loc.Slug(), nil
}

func splitOwnerName(value string) (string, string, error) {
	trimmed := strings.Trim(strings.TrimSpace(value), "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")
	if trimmed == "" {
		return "", "", schema.ErrInvalidRepo
	}
	name := path.Base(trimmed)
	owner := path.Dir(trimmed)
	if owner == "." {
		owner = ""
	}
	if name == "" || name == "." || name == ".." {
		return "", "", schema.ErrInvalidRepo
	}
	return owner, name, nil
}

func ensureGitSuffix(value string) string {
	if strings.HasSuffix(value, ".git") {
		return value
	}
	return value + ".git"
}
