package apierr

import (
	"errors"
	"fmt"
	"net/http"

	domainagg "github.com/yungbote/trackflow-backend/internal/domain/aggregates"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

func NotFound(msg string) *Error {
	return New(http.StatusNotFound, "not_found", errors.New(msg))
}

func Validation(msg string) *Error {
	return New(http.StatusBadRequest, "validation", errors.New(msg))
}

func Unauthorized(msg string) *Error {
	return New(http.StatusUnauthorized, "unauthorized", errors.New(msg))
}

func Forbidden(msg string) *Error {
	return New(http.StatusForbidden, "forbidden", errors.New(msg))
}

func Conflict(msg string) *Error {
	return New(http.StatusConflict, "conflict", errors.New(msg))
}

// FromError resolves any service error into an HTTP-facing error. *Error values pass
// through; aggregate codes map onto the five public kinds; everything else is a 500.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation, domainagg.CodeInvariantViolation:
		return New(http.StatusBadRequest, "validation", err)
	case domainagg.CodeNotFound:
		return New(http.StatusNotFound, "not_found", err)
	case domainagg.CodeConflict, domainagg.CodePreconditionFailed:
		return New(http.StatusConflict, "conflict", err)
	case domainagg.CodeRetryable:
		return New(http.StatusServiceUnavailable, "retryable", err)
	case domainagg.CodeUnauthorized:
		return New(http.StatusUnauthorized, "unauthorized", err)
	case domainagg.CodeForbidden:
		return New(http.StatusForbidden, "forbidden", err)
	default:
		return New(http.StatusInternalServerError, "server_error", err)
	}
}
