package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/schoolms/portal-client/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

// errorMapping pins a domain error to a status and a client-safe message.
type errorMapping struct {
	target  error
	status  int
	message string
}

// Checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{domain.ErrInvalidCredentials, http.StatusUnauthorized, "invalid credentials"},
	{domain.ErrInvalidRefresh, http.StatusUnauthorized, "invalid refresh token"},
	{domain.ErrNotAuthenticated, http.StatusUnauthorized, "not authenticated"},
	{domain.ErrForbidden, http.StatusForbidden, "access forbidden"},
	{domain.ErrUserNotFound, http.StatusNotFound, "user not found"},
}

// NewHTTPErrorHandler renders every handler error as {"error": "..."}.
// Unknown errors are logged with the request id and reported as a bare 500.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, msg, known := statusFor(err)
		if !known {
			log.Error().
				Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
				Msg("unhandled error")
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, errorResponse{Error: msg})
	}
}

// statusFor resolves err to a response status and message. known is false
// for errors that fall through to 500.
func statusFor(err error) (status int, msg string, known bool) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprint(he.Message), true
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.message, true
		}
	}
	return http.StatusInternalServerError, "internal server error", false
}
