package api

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/httputil"
	"github.com/parley-chat/parley-server/internal/user"
)

// localUserKey is the Locals key under which the identity middleware stores the resolved *user.User.
const localUserKey = "user"

// Identity resolves the client-asserted identity from the "user" query parameter against the user store. There are
// no credentials; an absent or unknown UUID yields 404 and the request never reaches the handler.
func Identity(users user.Repository, logger zerolog.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		id, err := uuid.Parse(fiber.Query[string](c, "user"))
		if err != nil {
			return httputil.Fail(c, fiber.StatusNotFound, "unknown user")
		}

		u, err := users.GetByUUID(c.Context(), id)
		if err != nil {
			if !errors.Is(err, user.ErrNotFound) {
				logger.Error().Err(err).Msg("User lookup failed")
			}
			return httputil.Fail(c, fiber.StatusNotFound, "unknown user")
		}

		c.Locals(localUserKey, u)
		return c.Next()
	}
}

// RequireAdmin gates a route on the admin flag of the already-resolved identity. Must run after Identity.
func RequireAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		u := CurrentUser(c)
		if u == nil || !u.IsAdmin {
			return httputil.Fail(c, fiber.StatusForbidden, "admin access required")
		}
		return c.Next()
	}
}

// CurrentUser returns the identity resolved by the Identity middleware, or nil outside it.
func CurrentUser(c fiber.Ctx) *user.User {
	u, _ := c.Locals(localUserKey).(*user.User)
	return u
}
