package schema

import "encoding/json"

// ResponseKind describes the shape of a success payload.
type ResponseKind string

const (
	// ResponseText carries a markdown message.
	ResponseText ResponseKind = "text"
	// ResponseImage carries a message plus inline images.
	ResponseImage ResponseKind = "image"
)

// ResultStatus tags a pipeline result.
type ResultStatus string

const (
	// StatusSuccess marks a formatted backend response.
	StatusSuccess ResultStatus = "success"
	// StatusError marks a terminal pipeline error.
	StatusError ResultStatus = "error"
)

// Image is an inline image returned to the caller.
type Image struct {
	Type          string `json:"type"`
	Format        string `json:"format"`
	Data          string `json:"data"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// Payload is the formatted, user-facing output of an action.
type Payload struct {
	Message string  `json:"message"`
	Images  []Image `json:"images"`
}

// Result is the tagged outcome of one pipeline invocation.
type Result struct {
	Status       ResultStatus
	Action       ActionKind
	ResponseKind ResponseKind
	Payload      Payload
	// Message holds the error text when Status is StatusError.
	Message string
}

// Success builds a success result whose response kind matches the action.
func Success(kind ActionKind, payload Payload) Result {
	responseKind := kind.ResponseKind()
	if responseKind == ResponseImage && payload.Images == nil {
		payload.Images = []Image{}
	}
	if responseKind == ResponseText {
		payload.Images = nil
	}
	return Result{
		Status:       StatusSuccess,
		Action:       kind,
		ResponseKind: responseKind,
		Payload:      payload,
	}
}

// Failure builds an error result. kind may be empty when no action was
// determined.
func Failure(message string, kind ActionKind) Result {
	return Result{Status: StatusError, Action: kind, Message: message}
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Text returns the human-readable message regardless of status.
func (r Result) Text() string {
	if r.OK() {
		return r.Payload.Message
	}
	return r.Message
}

type resultJSON struct {
	Status       ResultStatus `json:"status"`
	Action       ActionKind   `json:"action_type,omitempty"`
	ResponseKind ResponseKind `json:"response_type,omitempty"`
	Response     any          `json:"response,omitempty"`
	Message      string       `json:"message,omitempty"`
}

// MarshalJSON renders the caller-facing shape
// {status, action_type, response_type?, response|message}.
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{Status: r.Status, Action: r.Action}
	if r.OK() {
		out.ResponseKind = r.ResponseKind
		if r.ResponseKind == ResponseImage {
			out.Response = r.Payload
		} else {
			out.Response = r.Payload.Message
		}
	} else {
		out.Message = r.Message
	}
	return json.Marshal(out)
}

// UnmarshalJSON parses the caller-facing shape.
func (r *Result) UnmarshalJSON(data []byte) error {
	var in struct {
		Status       ResultStatus    `json:"status"`
		Action       ActionKind      `json:"action_type"`
		ResponseKind ResponseKind    `json:"response_type"`
		Response     json.RawMessage `json:"response"`
		Message      string          `json:"message"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Result{Status: in.Status, Action: in.Action, ResponseKind: in.ResponseKind, Message: in.Message}
	if len(in.Response) == 0 {
		return nil
	}
	if in.ResponseKind == ResponseImage {
		return json.Unmarshal(in.Response, &r.Payload)
	}
	return json.Unmarshal(in.Response, &r.Payload.Message)
}
