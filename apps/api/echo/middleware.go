package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edecs/academy/core/identity"
)

// adminMiddleware rejects principals whose stored role is not an administrator role.
// The token role is never trusted.
func adminMiddleware(ids *identity.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			email, err := actorEmail(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if _, err := ids.RequireAdmin(ctx.Request().Context(), email); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
