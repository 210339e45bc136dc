package services

import "errors"

// Domain error taxonomy. Handlers map these to HTTP statuses with errors.Is;
// everything else is treated as an internal storage failure and propagates.
var (
	// ErrNotFound covers both "does not exist" and "not owned by the caller"
	// so cross-user probing cannot distinguish the two.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an operation attempted against an interview or
	// chat session in a state that forbids it.
	ErrInvalidState = errors.New("invalid state")

	// ErrInsufficientData marks a report request made before the session has
	// accumulated enough interviewer questions.
	ErrInsufficientData = errors.New("not enough conversation to generate a report")

	// ErrUpstreamUnavailable marks a failed or unusable completion call. It is
	// recovered locally at every call site and never reaches the end user as
	// a hard failure.
	ErrUpstreamUnavailable = errors.New("completion service unavailable")

	// ErrParse marks a scoring response that could not be decoded. Treated
	// like ErrUpstreamUnavailable: it triggers the canned-report fallback.
	ErrParse = errors.New("unparseable completion response")
)
