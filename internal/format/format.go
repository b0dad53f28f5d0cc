// Package format renders backend results into user-facing payloads.
package format

import (
	"fmt"

	"pkt.systems/querydesk/schema"
)

const (
	onboardingError = "I apologize, but I encountered an error while searching the onboarding documents: %s"
	issueError      = "I apologize, but I encountered an error while creating the GitHub issue: %s"
	issueCreated    = "I've created a new GitHub issue:\nTitle: %s\nURL: %s"
	repoError       = "I apologize, but I encountered an error while querying the repository: %s"
	repoFound       = "Here's what I found in the codebase:\n%s"
	imageError      = "I apologize, but I encountered an error while generating the image: %s"
	imageNone       = "I apologize, but no images were generated successfully."
	imageCreated    = "I've generated a delicious donut based on your request! Here's how I interpreted it: %s"
	mismatch        = "I apologize, but I received an unexpected result for this request."
)

// Format converts raw into a payload for kind. It never fails: a raw result
// carrying an error, a missing result or one of the wrong variant all yield
// an apology message.
func Format(kind schema.ActionKind, raw schema.RawResult) schema.Payload {
	if raw == nil || raw.Kind() != kind {
		return apology(kind, mismatch)
	}
	switch r := raw.(type) {
	case schema.OnboardingAnswer:
		if r.Err != nil {
			return text(fmt.Sprintf(onboardingError, r.Err.Error))
		}
		return text(r.Response)
	case schema.IssueReceipt:
		if r.Err != nil {
			return text(fmt.Sprintf(issueError, r.Err.Error))
		}
		return text(fmt.Sprintf(issueCreated, r.Title, r.URL))
	case schema.RepoSummary:
		if r.Err != nil {
			return text(fmt.Sprintf(repoError, r.Err.Error))
		}
		return text(fmt.Sprintf(repoFound, r.Data))
	case schema.ImageSet:
		return formatImages(r)
	default:
		return apology(kind, mismatch)
	}
}

func formatImages(r schema.ImageSet) schema.Payload {
	if r.Err != nil {
		return schema.Payload{Message: fmt.Sprintf(imageError, r.Err.Error), Images: []schema.Image{}}
	}
	if len(r.Data) == 0 || r.Data[0].B64JSON == "" {
		return schema.Payload{Message: imageNone, Images: []schema.Image{}}
	}
	first := r.Data[0]
	return schema.Payload{
		Message: fmt.Sprintf(imageCreated, first.RevisedPrompt),
		Images: []schema.Image{{
			Type:          "image",
			Format:        "base64",
			Data:          first.B64JSON,
			RevisedPrompt: first.RevisedPrompt,
		}},
	}
}

func text(msg string) schema.Payload {
	return schema.Payload{Message: msg}
}

func apology(kind schema.ActionKind, msg string) schema.Payload {
	if kind.ResponseKind() == schema.ResponseImage {
		return schema.Payload{Message: msg, Images: []schema.Image{}}
	}
	return text(msg)
}
