package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeRateLimit       Code = "RATE_LIMIT_EXCEEDED"
	CodeExpired         Code = "EXPIRED"
	CodeTooManyAttempts Code = "TOO_MANY_ATTEMPTS"
	CodeInvalidCode     Code = "INVALID_CODE"
	CodeInternal        Code = "INTERNAL_ERROR"
	CodeDependency      Code = "DEPENDENCY_ERROR"
)

// Metadata describes how a Code surfaces over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

func meta(status int, public string, retryable, details bool) Metadata {
	return Metadata{HTTPStatus: status, Retryable: retryable, PublicMessage: public, DetailsAllowed: details}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:      meta(http.StatusBadRequest, "validation failed", false, true),
	CodeUnauthorized:    meta(http.StatusUnauthorized, "authentication required", false, false),
	CodeForbidden:       meta(http.StatusForbidden, "access denied", false, false),
	CodeNotFound:        meta(http.StatusNotFound, "resource not found", false, false),
	CodeConflict:        meta(http.StatusConflict, "conflict detected", false, false),
	CodeRateLimit:       meta(http.StatusTooManyRequests, "rate limit exceeded", false, false),
	CodeExpired:         meta(http.StatusUnauthorized, "expired", false, false),
	CodeTooManyAttempts: meta(http.StatusUnauthorized, "too many failed attempts, request a new code", false, false),
	CodeInvalidCode:     meta(http.StatusUnauthorized, "invalid verification code", false, false),
	CodeInternal:        meta(http.StatusInternalServerError, "internal server error", true, false),
	CodeDependency:      meta(http.StatusServiceUnavailable, "dependency unavailable", true, true),
}

// MetadataFor falls back to CodeInternal for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
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
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
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
