// Package domain provides the client-side model of a deliberation session and its canonical errors.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the category of a client error.
type ErrorKind string

const (
	// KindValidation is raised before any network call is issued.
	KindValidation ErrorKind = "validation"

	// KindRequest means the backend rejected the call or could not be reached.
	KindRequest ErrorKind = "request"

	// KindState means the operation is not legal in the controller's current state.
	KindState ErrorKind = "state"
)

// ErrorCode provides additional specificity beyond the kind.
type ErrorCode string

const (
	CodeMissingCredential ErrorCode = "missing_credential"
	CodeInvalidBudget     ErrorCode = "invalid_budget"
	CodeInvalidThreshold  ErrorCode = "invalid_threshold"
	CodeEmptyIssue        ErrorCode = "empty_issue"
	CodeInvalidPreference ErrorCode = "invalid_preference"
	CodeInvalidAgentCount ErrorCode = "invalid_agent_count"
	CodeUnknownProvider   ErrorCode = "unknown_provider"
	CodeUnknownModel      ErrorCode = "unknown_model"
	CodeIndexOutOfRange   ErrorCode = "index_out_of_range"
	CodeBudgetExceeded    ErrorCode = "budget_exceeded"
	CodeSessionInactive   ErrorCode = "session_inactive"
	CodeOutOfSync         ErrorCode = "out_of_sync"
	CodeNotConfirmed      ErrorCode = "not_confirmed"

	CodeRequestPending    ErrorCode = "request_pending"
	CodeInvalidTransition ErrorCode = "invalid_transition"
	CodeReviewClosed      ErrorCode = "review_closed"

	CodeNotFound    ErrorCode = "not_found"
	CodeRejected    ErrorCode = "rejected"
	CodeUnreachable ErrorCode = "unreachable"
	CodeServer      ErrorCode = "server"
)

// Error is the canonical error returned by every client component.
type Error struct {
	Kind ErrorKind
	Code ErrorCode

	// Message is the human-readable message. For request errors it is the
	// server-provided detail, verbatim.
	Message string

	// Param names the input that caused a validation error.
	Param string

	// StatusCode is the HTTP status of a rejected request, 0 otherwise.
	StatusCode int

	// Op names the backend operation, e.g. "iterate session".
	Op string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.cause != nil {
		msg = e.cause.Error()
	}
	if msg == "" {
		msg = "no detail"
	}
	if e.Op != "" {
		return fmt.Sprintf("%s (%s) %s: %s", e.Kind, e.Code, e.Op, msg)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches sentinels by kind and code so errors.Is works on built errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewError creates an error of the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WithCode adds an error code to the error.
func (e *Error) WithCode(code ErrorCode) *Error {
	e.Code = code
	return e
}

// WithParam adds a parameter name to the error.
func (e *Error) WithParam(param string) *Error {
	e.Param = param
	return e
}

// WithStatusCode records the HTTP status of a rejected request.
func (e *Error) WithStatusCode(code int) *Error {
	e.StatusCode = code
	return e
}

// WithOp records the backend operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Convenience constructors

// ErrValidation creates a validation error.
func ErrValidation(message string) *Error {
	return NewError(KindValidation, message)
}

// ErrState creates a state error.
func ErrState(message string) *Error {
	return NewError(KindState, message)
}

// ErrRequest creates a request error for a rejected or failed backend call.
// detail is the server message, if any.
func ErrRequest(op string, status int, detail string) *Error {
	code := CodeRejected
	switch {
	case status == 0:
		code = CodeUnreachable
	case status == http.StatusNotFound:
		code = CodeNotFound
	case status >= http.StatusInternalServerError:
		code = CodeServer
	}
	return NewError(KindRequest, detail).WithCode(code).WithStatusCode(status).WithOp(op)
}

// Sentinels for errors.Is.
var (
	ErrNoCredentials     = &Error{Kind: KindValidation, Code: CodeMissingCredential}
	ErrInvalidBudget     = &Error{Kind: KindValidation, Code: CodeInvalidBudget}
	ErrBudgetExceeded    = &Error{Kind: KindValidation, Code: CodeBudgetExceeded}
	ErrSessionInactive   = &Error{Kind: KindValidation, Code: CodeSessionInactive}
	ErrOutOfSync         = &Error{Kind: KindValidation, Code: CodeOutOfSync}
	ErrNotConfirmed      = &Error{Kind: KindValidation, Code: CodeNotConfirmed}
	ErrRequestPending    = &Error{Kind: KindState, Code: CodeRequestPending}
	ErrInvalidTransition = &Error{Kind: KindState, Code: CodeInvalidTransition}
	ErrReviewClosed      = &Error{Kind: KindState, Code: CodeReviewClosed}
	ErrNotFound          = &Error{Kind: KindRequest, Code: CodeNotFound}
)

// IsValidation reports whether err was raised before any network call.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindValidation
}

// IsRequest reports whether err came from a failed backend call.
func IsRequest(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindRequest
}

var fallbackMessages = map[string]string{
	"propose agents":   "Failed to propose agents",
	"create session":   "Failed to create session",
	"iterate session":  "Failed to iterate session",
	"complete session": "Failed to complete session",
	"list sessions":    "Failed to load sessions",
	"get session":      "Failed to load session",
	"delete session":   "Failed to delete session",
	"model pricing":    "Failed to load model pricing",
}

// UserMessage returns the text to show the user for err: the server detail
// verbatim when present, else a generic fallback for the operation.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Kind == KindRequest {
		if msg, ok := fallbackMessages[e.Op]; ok {
			return msg
		}
		return "Request failed"
	}
	if e.cause != nil {
		return e.cause.Error()
	}
	return string(e.Code)
}
