package apierr

import (
	"fmt"
	"net/http"
	"strings"
)

// Error is the API error taxonomy: a stable machine code, a human message,
// the HTTP status it maps to, and the offending parameter names when the
// failure is input-related.
type Error struct {
	Status  int
	Code    string
	Message string
	Params  []string
}

func (e *Error) Error() string { return e.Message }

func BadRequest(code, msg string, params ...string) *Error {
	if code == "" {
		code = "bad_request"
	}
	return &Error{Status: http.StatusBadRequest, Code: code, Message: msg, Params: params}
}

// MissingParameter reports all missing required parameters jointly.
func MissingParameter(params ...string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "missing_parameter",
		Message: fmt.Sprintf("missing required parameter(s): %s", strings.Join(params, ", ")),
		Params:  params,
	}
}

func InvalidParameter(param, msg string) *Error {
	return &Error{
		Status:  http.StatusBadRequest,
		Code:    "invalid_parameter",
		Message: fmt.Sprintf("invalid parameter %s: %s", param, msg),
		Params:  []string{param},
	}
}

func Unauthorized(msg string) *Error {
	if msg == "" {
		msg = "authentication required"
	}
	return &Error{Status: http.StatusUnauthorized, Code: "unauthorized", Message: msg}
}

func Forbidden(capability string) *Error {
	return &Error{
		Status:  http.StatusForbidden,
		Code:    "forbidden",
		Message: fmt.Sprintf("you are not allowed to %s", capability),
	}
}

func NotFound(msg string) *Error {
	if msg == "" {
		msg = "resource not found"
	}
	return &Error{Status: http.StatusNotFound, Code: "not_found", Message: msg}
}

// AlreadyTrashed is the conflict-class error for a redundant trash request.
func AlreadyTrashed() *Error {
	return &Error{
		Status:  http.StatusGone,
		Code:    "already_trashed",
		Message: "the resource is already in the trash",
	}
}

func Server(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "internal_error", Message: err.Error()}
}
