package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error surfaced to gateway callers
type Kind string

const (
	KindAuthenticationFailed Kind = "authentication_failed"
	KindPermissionDenied     Kind = "permission_denied"
	KindNotFound             Kind = "not_found"
	KindRateLimited          Kind = "rate_limited"
	KindBadRequest           Kind = "bad_request"
	KindUpstreamUnavailable  Kind = "upstream_unavailable"
	KindUpstreamTimeout      Kind = "upstream_timeout"
	KindUpstreamError        Kind = "upstream_error"
	KindInternal             Kind = "internal_error"
)

// Error is an error with a caller-visible kind and HTTP mapping
type Error struct {
	Kind    Kind
	Message string
	// ResetTime is set for rate-limited errors only.
	ResetTime time.Time
	wrapped   error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// New creates an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, wrapped: err}
}

// RateLimited creates a 429 error carrying the budget reset time.
func RateLimited(msg string, reset time.Time) *Error {
	return &Error{Kind: KindRateLimited, Message: msg, ResetTime: reset}
}

// StatusCode maps the kind to its HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindAuthenticationFailed:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	case KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case KindUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromError extracts an *Error from err, or wraps it as an internal error.
// Unclassified errors never leak their message to callers.
func FromError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &Error{Kind: KindInternal, Message: "internal server error", wrapped: err}
}

// body is the JSON error envelope written to callers
type body struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	ResetTime string `json:"reset_time,omitempty"`
}

// Write renders err as a JSON response. Rate-limited errors also set the
// X-RateLimit-Reset header.
func Write(w http.ResponseWriter, err error, requestID string) {
	apiErr := FromError(err)

	w.Header().Set("Content-Type", "application/json")
	if apiErr.Kind == KindRateLimited && !apiErr.ResetTime.IsZero() {
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", apiErr.ResetTime.Unix()))
	}
	w.WriteHeader(apiErr.StatusCode())

	b := body{
		Error:     string(apiErr.Kind),
		Message:   apiErr.Message,
		RequestID: requestID,
	}
	if apiErr.Kind == KindRateLimited && !apiErr.ResetTime.IsZero() {
		b.ResetTime = apiErr.ResetTime.UTC().Format(time.RFC3339)
	}
	_ = json.NewEncoder(w).Encode(b)
}
