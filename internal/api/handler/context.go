package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/schoolms/portal-client/internal/api/middleware"
)

// ctxClaims extracts the identity injected by the Auth middleware. A missing
// user id means the middleware did not run and the request is rejected.
func ctxClaims(c echo.Context) (userID string, roles []string, err error) {
	userID, _ = c.Get(middleware.CtxUserID).(string)
	if userID == "" {
		return "", nil, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	roles, _ = c.Get(middleware.CtxRoles).([]string)
	return userID, roles, nil
}

// bindAndValidate decodes the body into req and runs the registered validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
