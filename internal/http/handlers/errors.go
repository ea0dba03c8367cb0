// Package handlers defines the HTTP-layer error codes shared by all API
// endpoints. Codes are lowercase snake_case and stable: clients branch on
// them programmatically, so renaming one is a breaking change.
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeNotFound     = "not_found"
	ErrCodeConflict     = "conflict"
	ErrCodeRateLimited  = "too_many_requests"
	ErrCodeInternal     = "internal_error"

	// Domain-specific:
	ErrCodeBlocked          = "blocked"
	ErrCodeSessionEnded     = "session_ended"
	ErrCodeDispatchFailed   = "dispatch_failed"
	ErrCodeRenotifyTooSoon  = "renotify_too_soon"
	ErrCodeRenotifyExceeded = "renotify_exceeded"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
