package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/schema"
)

// FallbackAction is used when the classifier answer is not a known kind.
const FallbackAction = schema.ActionOnboardingQuery

// Classifier maps a query onto an action kind with a completion call.
type Classifier struct {
	completer Completer
}

// NewClassifier constructs a classifier.
func NewClassifier(completer Completer) (*Classifier, error) {
	if completer == nil {
		return nil, errors.New("classifier requires a completer")
	}
	return &Classifier{completer: completer}, nil
}

// Classify returns the action kind for query. Unrecognized answers fall back
// to FallbackAction; only a completion failure is returned as an error.
func (c *Classifier) Classify(ctx context.Context, query string) (schema.ActionKind, error) {
	answer, err := c.completer.Complete(ctx, CompletionRequest{
		System:      classifySystem,
		User:        fmt.Sprintf(classifyPrompt, query),
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}
	normalized := normalizeAnswer(answer)
	kind, ok := schema.ParseActionKind(normalized)
	if !ok {
		pslog.Ctx(ctx).Warn("classifier answer not recognized", "answer", truncate(answer, 80), "fallback", FallbackAction)
		return FallbackAction, nil
	}
	return kind, nil
}

func normalizeAnswer(answer string) string {
	s := strings.ToLower(strings.TrimSpace(answer))
	s = strings.Trim(s, "\"'`*")
	s = strings.TrimRight(s, ".!;:,")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
