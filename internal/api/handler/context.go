package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/direct-messaging/internal/api/middleware"
	"github.com/99minutos/direct-messaging/internal/core/domain"
)

// ctxIdentity extracts the identity injected by the Auth middleware. Its
// absence means the route was registered without the middleware.
func ctxIdentity(c echo.Context) (domain.Identity, error) {
	identity, ok := middleware.Identity(c)
	if !ok {
		return domain.Identity{}, echo.NewHTTPError(http.StatusUnauthorized, "missing authentication claims")
	}
	return identity, nil
}

// bindAndValidate decodes the request body into req and runs the echo validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
