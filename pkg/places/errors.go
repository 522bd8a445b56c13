package places

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
)

// ErrorKind classifies a failed places API call.
type ErrorKind string

const (
	KindBadRequest   ErrorKind = "BAD_REQUEST"
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindRateLimited  ErrorKind = "RATE_LIMITED"
	KindServerError  ErrorKind = "SERVER_ERROR"
	KindUnknown      ErrorKind = "UNKNOWN"
)

// APIError is a typed places API failure.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error

	temporary bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("places api %s (%d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("places api %s: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *APIError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindServerError || e.temporary
}

func (e *APIError) ToHTTPError() *httperror.HTTPError {
	code := http.StatusBadGateway
	if e.Kind == KindRateLimited {
		code = http.StatusServiceUnavailable
	}
	return httperror.NewHTTPError(code, "places api request failed").
		AddMetaValue("kind", string(e.Kind)).
		AddMetaValue("upstream_status", strconv.Itoa(e.StatusCode))
}

// ExhaustedError is returned when every allowed attempt failed with a
// retryable error.
type ExhaustedError struct {
	Attempts int
	Last     *APIError
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("places api retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

func (e *ExhaustedError) ToHTTPError() *httperror.HTTPError {
	return e.Last.ToHTTPError().AddMetaValue("attempts", strconv.Itoa(e.Attempts))
}

// KindOf returns the kind of a places failure, or KindUnknown for other errors.
func KindOf(err error) ErrorKind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// kindForStatus maps a non-2xx status onto its kind.
func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}
