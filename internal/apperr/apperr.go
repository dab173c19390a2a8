// Package apperr defines the error taxonomy surfaced by the API. Every error
// carries a user-facing message, a corrective action hint, and an HTTP status;
// the boundary in internal/handlers maps them to JSON responses.
package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind identifies the category of an Error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindUnauthorized
	KindForbidden
	KindMethodNotAllowed
	KindService
)

func (k Kind) name() string {
	switch k {
	case KindValidation:
		return "ValidationError"
	case KindNotFound:
		return "NotFoundError"
	case KindUnauthorized:
		return "UnauthorizedError"
	case KindForbidden:
		return "ForbiddenError"
	case KindMethodNotAllowed:
		return "MethodNotAllowedError"
	case KindService:
		return "ServiceError"
	default:
		return "InternalServerError"
	}
}

func (k Kind) statusCode() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindService:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a structured API error. Cause and Context are for server-side
// diagnosis only and are never serialized.
type Error struct {
	Kind    Kind
	Message string
	Action  string

	// Cause is the wrapped underlying error, if any.
	Cause error

	// Context carries the attempted operation's input for diagnosis
	// (e.g. the email message that failed to send).
	Context any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// StatusCode returns the HTTP status associated with the error's kind.
func (e *Error) StatusCode() int {
	return e.Kind.statusCode()
}

// Name returns the public error name (e.g. "ValidationError").
func (e *Error) Name() string {
	return e.Kind.name()
}

// MarshalJSON serializes the public shape of the error. The cause is
// deliberately omitted.
func (e *Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name       string `json:"name"`
		Message    string `json:"message"`
		Action     string `json:"action"`
		StatusCode int    `json:"status_code"`
	}{
		Name:       e.Name(),
		Message:    e.Message,
		Action:     e.Action,
		StatusCode: e.StatusCode(),
	})
}

// Validation reports caller-supplied data violating a uniqueness or format rule.
func Validation(message, action string) *Error {
	return &Error{Kind: KindValidation, Message: message, Action: action}
}

// NotFound reports a missing entity. For activation tokens this also covers
// expired and already-used tokens, which are indistinguishable by design.
func NotFound(message, action string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Action: action}
}

// Unauthorized reports a missing or invalid credential. The boundary clears
// the session cookie when responding with this kind.
func Unauthorized(message, action string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, Action: action}
}

// Forbidden reports an authenticated principal lacking a required capability.
func Forbidden(message, action string) *Error {
	return &Error{Kind: KindForbidden, Message: message, Action: action}
}

// MethodNotAllowed reports an HTTP method a known route does not support.
func MethodNotAllowed() *Error {
	return &Error{
		Kind:    KindMethodNotAllowed,
		Message: "Method not allowed for this endpoint.",
		Action:  "Check that the HTTP method is valid for this endpoint.",
	}
}

// Internal reports a programmer error or an unexpected downstream fault.
// The cause is logged server-side and never echoed to the caller.
func Internal(cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Message: "An unexpected internal error occurred.",
		Action:  "Contact support with the time the error occurred.",
		Cause:   cause,
	}
}

// Service reports a downstream collaborator failure, wrapping the cause and
// the attempted operation's context.
func Service(message, action string, cause error, context any) *Error {
	return &Error{
		Kind:    KindService,
		Message: message,
		Action:  action,
		Cause:   cause,
		Context: context,
	}
}

// From extracts an *Error, converting unknown errors to the internal kind.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
