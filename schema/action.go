package schema

import (
	"fmt"
	"strings"
)

// ActionKind is the closed set of intents a query can be routed to.
type ActionKind string

const (
	// ActionOnboardingQuery answers policy questions from the onboarding index.
	ActionOnboardingQuery ActionKind = "onboarding_query"
	// ActionGitHubIssues files an issue in the tracker.
	ActionGitHubIssues ActionKind = "github_issues"
	// ActionRepoQuery summarizes the configured repository.
	ActionRepoQuery ActionKind = "repo_query"
	// ActionCreateImage generates an image from the query.
	ActionCreateImage ActionKind = "create_image"
)

// actionAliases maps alternate spellings to canonical kinds.
var actionAliases = map[string]ActionKind{
	"code_query": ActionRepoQuery,
}

// ActionKinds returns every member of the closed set in a stable order.
func ActionKinds() []ActionKind {
	return []ActionKind{ActionOnboardingQuery, ActionGitHubIssues, ActionRepoQuery, ActionCreateImage}
}

// Valid reports whether k is a member of the closed set.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionOnboardingQuery, ActionGitHubIssues, ActionRepoQuery, ActionCreateImage:
		return true
	default:
		return false
	}
}

// ResponseKind returns the payload shape produced for the action.
func (k ActionKind) ResponseKind() ResponseKind {
	if k == ActionCreateImage {
		return ResponseImage
	}
	return ResponseText
}

// ParseActionKind normalizes value and maps it onto the closed set.
// Aliases such as code_query resolve to their canonical kind.
func ParseActionKind(value string) (ActionKind, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if kind := ActionKind(normalized); kind.Valid() {
		return kind, true
	}
	if kind, ok := actionAliases[normalized]; ok {
		return kind, true
	}
	return "", false
}

// Permission is the (operation, resource) pair a policy engine evaluates.
type Permission struct {
	Action   string `mapstructure:"action" yaml:"action" json:"action"`
	Resource string `mapstructure:"resource" yaml:"resource" json:"resource"`
}

// PermissionMap holds the static permission requirement per action kind.
type PermissionMap map[ActionKind]Permission

// DefaultPermissions returns the stock action to permission mapping.
func DefaultPermissions() PermissionMap {
	return PermissionMap{
		ActionOnboardingQuery: {Action: "read", Resource: "onboarding_query"},
		ActionGitHubIssues:    {Action: "create", Resource: "github_issues"},
		ActionRepoQuery:       {Action: "read", Resource: "code_query"},
		ActionCreateImage:     {Action: "create", Resource: "create_image"},
	}
}

// Lookup returns the requirement for kind.
func (m PermissionMap) Lookup(kind ActionKind) (Permission, bool) {
	perm, ok := m[kind]
	return perm, ok
}

// Validate ensures every action kind has a complete requirement and no
// foreign kinds are present.
func (m PermissionMap) Validate() error {
	for kind := range m {
		if !kind.Valid() {
			return fmt.Errorf("%w: %s", ErrUnknownAction, kind)
		}
	}
	for _, kind := range ActionKinds() {
		perm, ok := m[kind]
		if !ok {
			return fmt.Errorf("permission for %s is required", kind)
		}
		if strings.TrimSpace(perm.Action) == "" || strings.TrimSpace(perm.Resource) == "" {
			return fmt.Errorf("permission for %s needs action and resource", kind)
		}
	}
	return nil
}
