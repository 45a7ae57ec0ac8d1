package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	apperrors "accounts/internal/errors"
)

func respond(c echo.Context, status int, message string, data interface{}) error {
	return c.JSON(status, apperrors.Response{
		StatusCode: status,
		Message:    message,
		Data:       data,
	})
}

// NewErrorHandler renders every error returned by a handler or middleware as a
// response envelope. Causes of 5xx responses are logged, never sent.
func NewErrorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *apperrors.HTTPError
		var echoErr *echo.HTTPError
		switch {
		case errors.As(err, &echoErr):
			// Routing and framework errors: 404, 405, oversized bodies.
			msg := http.StatusText(echoErr.Code)
			if s, ok := echoErr.Message.(string); ok && s != "" {
				msg = s
			}
			httpErr = apperrors.NewHTTPError(echoErr.Code, msg, "HTTP_ERROR")
		default:
			httpErr = apperrors.MapErrorToHTTP(err)
		}

		if httpErr.StatusCode >= http.StatusInternalServerError {
			log.WithError(err).WithField("uri", c.Request().RequestURI).Error("unhandled error")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(httpErr.StatusCode)
		} else {
			writeErr = c.JSON(httpErr.StatusCode, httpErr.ToResponse())
		}
		if writeErr != nil {
			log.WithError(fmt.Errorf("write error response: %w", writeErr)).Warn("response not sent")
		}
	}
}
