package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/99minutos/direct-messaging/internal/core/domain"
	"github.com/99minutos/direct-messaging/internal/core/ports"
)

const identityKey = "identity"

// Auth verifies the bearer token and injects the caller's identity into context.
func Auth(verifier ports.IdentityVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization header")
			}

			identity, err := verifier.Verify(strings.TrimSpace(parts[1]))
			if err != nil {
				if errors.Is(err, domain.ErrExpiredCredential) {
					return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// Identity returns the identity stored by Auth.
func Identity(c echo.Context) (domain.Identity, bool) {
	identity, ok := c.Get(identityKey).(domain.Identity)
	return identity, ok && identity.ID != ""
}

// WithIdentity stores identity the way Auth does. Handler tests use it to
// skip token signing.
func WithIdentity(c echo.Context, identity domain.Identity) {
	c.Set(identityKey, identity)
}
