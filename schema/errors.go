package schema

import "errors"

var (
	// ErrInvalidRequest indicates a malformed request payload.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidUser indicates an invalid or unknown user identifier.
	ErrInvalidUser = errors.New("invalid user")
	// ErrUserNotFound indicates the user is not in the directory.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials indicates a failed password check.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidTOTP indicates a failed one-time code check.
	ErrInvalidTOTP = errors.New("invalid totp")
	// ErrEmptyQuery indicates the query text was empty.
	ErrEmptyQuery = errors.New("empty query")
	// ErrUnknownAction indicates an action kind outside the closed set.
	ErrUnknownAction = errors.New("unknown action type")
	// ErrMissingHandler indicates an action kind without a registered handler.
	ErrMissingHandler = errors.New("missing action handler")
	// ErrNotConfigured indicates a backend that has no configuration.
	ErrNotConfigured = errors.New("not configured")
	// ErrInvalidRepo indicates a repository locator that cannot be parsed.
	ErrInvalidRepo = errors.New("invalid repository")
	// ErrUpstream indicates an external collaborator returned a failure.
	ErrUpstream = errors.New("upstream failure")
)
