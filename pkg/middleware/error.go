package middleware

import (
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/poppy/pkg/context"
	"github.com/Ramsey-B/poppy/pkg/tracing"
)

type ErrorResponse struct {
	Message   string         `json:"message"`
	RequestID string         `json:"request_id"`
	TraceID   string         `json:"trace_id"`
	Meta      map[string]any `json:"meta"`
}

// httpErrorer is implemented by domain errors that know their client-facing form.
type httpErrorer interface {
	ToHTTPError() *httperror.HTTPError
}

func Error(logger ectologger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		ctx := c.Request().Context()
		// Check if the response is already committed
		if c.Response().Committed {
			return
		}

		code, message, meta := resolve(err)

		log := logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"status": code})
		if code >= http.StatusInternalServerError {
			log.Error("api is returning an error")
		} else {
			log.Debug("api is returning a client error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}

		_ = c.JSON(code, ErrorResponse{
			Message:   message,
			RequestID: context.GetRequestID(ctx),
			TraceID:   tracing.GetTraceID(ctx),
			Meta:      meta,
		})
	}
}

func resolve(err error) (int, string, map[string]any) {
	code := http.StatusInternalServerError
	message := "Internal Server Error"
	meta := map[string]any{}

	var domainErr httpErrorer
	if errors.As(err, &domainErr) {
		herr := domainErr.ToHTTPError()
		return httperror.GetStatusCode(herr), herr.Error(), metaOf(herr)
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		} else {
			message = http.StatusText(code)
		}
		return code, message, meta
	}

	if httperror.IsHTTPError(err) {
		herr := httperror.ToHTTPError(err)
		return httperror.GetStatusCode(err), herr.Error(), metaOf(herr)
	}

	return code, message, meta
}

func metaOf(herr *httperror.HTTPError) map[string]any {
	if herr.Meta == nil {
		return map[string]any{}
	}
	return herr.Meta
}
