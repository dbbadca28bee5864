package endpoint

import (
	"fmt"
	"net/http"

	"github.com/Togather-Foundation/conduit/schema"
)

// Error is the typed condition the pipeline translates into an error
// response. Handlers may return one to control the response status; any
// other error becomes an internal error. Issues are populated for
// validation failures only and are the sole machine-readable detail ever
// sent to callers.
type Error struct {
	Status  int
	Code    string
	Message string
	Issues  []schema.Issue
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError returns an Error with the given status and message.
func NewError(status int, message string) *Error {
	return &Error{Status: status, Code: codeFor(status), Message: message}
}

// Unprocessable reports a request that failed input validation.
func Unprocessable(issues []schema.Issue) *Error {
	return &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    "unprocessable",
		Message: "request validation failed",
		Issues:  issues,
	}
}

// Unauthorized reports a denied request. Deliberately detail-free.
func Unauthorized() *Error {
	return &Error{
		Status:  http.StatusUnauthorized,
		Code:    "unauthorized",
		Message: "unauthorized",
	}
}

// NotFound reports a missing resource.
func NotFound(message string) *Error {
	if message == "" {
		message = "not found"
	}
	return &Error{Status: http.StatusNotFound, Code: "not_found", Message: message}
}

// Internal wraps a server-side failure. The cause is logged, never
// returned to the caller.
func Internal(err error) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    "internal_error",
		Message: "internal server error",
		cause:   err,
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "unprocessable"
	default:
		if status >= 500 {
			return "internal_error"
		}
		return "error"
	}
}
