package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/99minutos/identity-system/internal/core/domain"
)

// RequireSuperUser lets the request through only when the access token was
// issued to a user holding a role with super privileges.
func RequireSuperUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if superUser, _ := c.Get("super_user").(bool); !superUser {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}
