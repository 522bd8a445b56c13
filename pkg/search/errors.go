package search

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// Error is a storage failure behind a search. It is distinct from validation
// errors so callers can tell a bad query from an unavailable backend.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("search %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusServiceUnavailable, "search is temporarily unavailable")
}
