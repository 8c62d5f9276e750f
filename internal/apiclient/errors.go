package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/fastygo/classroom/domain"
)

const fallbackMessage = "An unexpected error occurred"

// Error is a non-2xx API response. It unwraps to the domain.Error matching its
// status so callers can classify it without knowing HTTP.
type Error struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	Body       []byte
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPStatus exposes the status code to packages that classify errors generically.
func (e *Error) HTTPStatus() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return domain.NewError(codeForStatus(e.StatusCode), msg)
}

func codeForStatus(status int) domain.ErrorCode {
	switch {
	case status == http.StatusUnauthorized:
		return domain.ErrCodeUnauthorized
	case status == http.StatusForbidden:
		return domain.ErrCodeForbidden
	case status == http.StatusNotFound:
		return domain.ErrCodeNotFound
	case status == http.StatusConflict:
		return domain.ErrCodeConflict
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests, status >= 500:
		return domain.ErrCodeUnavailable
	case status >= 400:
		return domain.ErrCodeInvalid
	default:
		return domain.ErrCodeInternal
	}
}

// StatusCode returns the HTTP status carried by err, or 0 for transport errors.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Message turns any error into the plain string shown to the user.
func Message(err error) string {
	if err == nil {
		return fallbackMessage
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fmt.Sprintf("Request failed with status code %d", apiErr.StatusCode)
	}
	var vErr *domain.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Error()
	}
	var dErr *domain.Error
	if errors.As(err, &dErr) && dErr.Message != "" {
		return dErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallbackMessage
}

func refreshFailure(cause error) error {
	if cause == nil {
		return domain.ErrRefreshFailed
	}
	return fmt.Errorf("%w: %w", domain.ErrRefreshFailed, cause)
}

// sessionExpired marks a request that was still rejected after a fresh token.
func sessionExpired(cause *Error) error {
	return fmt.Errorf("%w: %w", domain.ErrSessionExpired, cause)
}
