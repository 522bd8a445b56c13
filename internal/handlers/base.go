package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/poppy/pkg/validation"
)

// Dispatcher runs fn outside of the request. The context handed to fn carries
// the request values but is never cancelled when the request ends.
type Dispatcher func(ctx context.Context, fn func(ctx context.Context))

// Background is the production Dispatcher
func Background(ctx context.Context, fn func(ctx context.Context)) {
	go fn(context.WithoutCancel(ctx))
}

// ParseID parses a positive integer id from a path parameter
func ParseID(c echo.Context, param string) (int64, error) {
	idStr := c.Param(param)
	if idStr == "" {
		return 0, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a positive integer", param)
	}

	return id, nil
}

// queryFloat reads an optional float query parameter
func queryFloat(c echo.Context, name string, def float64) (float64, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, validation.FieldError(name, "%s must be a number", name)
	}
	return v, nil
}

// queryInt reads an optional integer query parameter
func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, validation.FieldError(name, "%s must be an integer", name)
	}
	return v, nil
}

// queryBool reads an optional boolean query parameter
func queryBool(c echo.Context, name string) (bool, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, validation.FieldError(name, "%s must be true or false", name)
	}
	return v, nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// AcceptedResponse returns a 202 Accepted with data
func AcceptedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusAccepted, data)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}
