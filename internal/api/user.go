package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/parley-chat/parley-server/internal/httputil"
	"github.com/parley-chat/parley-server/internal/user"
)

// UserHandler serves the caller's own account record.
type UserHandler struct{}

// NewUserHandler creates a new user handler.
func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// userResponse is the wire shape of an account record.
type userResponse struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{
		UUID:     u.UUID.String(),
		Username: u.Username,
		IsAdmin:  u.IsAdmin,
	}
}

// Me handles GET /api/user. The record was already resolved by the Identity middleware.
func (h *UserHandler) Me(c fiber.Ctx) error {
	u := CurrentUser(c)
	if u == nil {
		return httputil.Fail(c, fiber.StatusNotFound, "unknown user")
	}
	return httputil.OK(c, fiber.Map{"user": toUserResponse(u)})
}
