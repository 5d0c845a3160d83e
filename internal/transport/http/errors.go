package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/gogo/agentgate/internal/domain"
)

const genericErrorMessage = "An unexpected error occurred."

// newErrorHandler renders faults raised before streaming as a JSON error body.
// Once a stream has started the response is committed and the fault is only
// logged.
func newErrorHandler(logger *slog.Logger, debug bool) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			logger.Error("fault after response started", "path", c.Request().URL.Path, "err", err)
			return
		}

		code := http.StatusInternalServerError
		message := genericErrorMessage
		var he *echo.HTTPError
		switch {
		case isInvalidRequest(err):
			code = http.StatusBadRequest
			message = err.Error()
		case errors.As(err, &he):
			code = he.Code
			message = http.StatusText(code)
			if m, ok := he.Message.(string); ok {
				message = m
			}
		default:
			logger.Error("request failed", "path", c.Request().URL.Path, "err", err)
			if debug {
				message = err.Error()
			}
		}

		resp := domain.ErrorResponse{
			Error:   http.StatusText(code),
			Message: message,
			Path:    c.Request().URL.String(),
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, resp)
		}
		if err != nil {
			logger.Error("failed to write error response", "err", err)
		}
	}
}

func isInvalidRequest(err error) bool {
	return errors.Is(err, domain.ErrInvalidRequest)
}
