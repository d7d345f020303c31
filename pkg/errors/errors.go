package errors

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeTimeout       Code = "TIMEOUT"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a code is presented to API clients.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, false, "validation failed", true},
	CodeUnauthorized:  {http.StatusUnauthorized, false, "authentication required", false},
	CodeForbidden:     {http.StatusForbidden, false, "access denied", false},
	CodeNotFound:      {http.StatusNotFound, false, "resource not found", false},
	CodeConflict:      {http.StatusConflict, false, "conflict detected", false},
	CodeStateConflict: {http.StatusUnprocessableEntity, false, "state transition disallowed", true},
	CodeIdempotency:   {http.StatusConflict, false, "idempotency key reused", true},
	CodeRateLimit:     {http.StatusTooManyRequests, true, "rate limit exceeded", false},
	CodeTimeout:       {http.StatusGatewayTimeout, true, "request timed out", false},
	CodeInternal:      {http.StatusInternalServerError, true, "internal server error", false},
	CodeDependency:    {http.StatusServiceUnavailable, true, "dependency unavailable", true},
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is the typed error carried from services to the HTTP layer. Message
// is shown to the caller for 4xx codes.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is lets errors.Is match on code alone when target has no message, so
// errors.Is(err, New(CodeNotFound, "")) holds for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return t.code == e.code && (t.message == "" || t.message == e.message)
}

// IsCode reports whether err carries the provided code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// UserMessage returns the message intended for the person who triggered err.
// Typed errors keep their own message; anything else collapses to fallback.
func UserMessage(err error, fallback string) string {
	if typed := As(err); typed != nil && typed.Message() != "" {
		return typed.Message()
	}
	return fallback
}

// Classify returns the typed error in err's chain. Deadline errors become
// CodeTimeout and anything else untyped becomes CodeInternal.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if typed := As(err); typed != nil {
		return typed
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return Wrap(CodeTimeout, err, "request timed out")
	}
	return Wrap(CodeInternal, err, "unexpected error")
}

// Retryable reports whether the caller may repeat the operation unchanged.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	return MetadataFor(Classify(err).Code()).Retryable
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
