package api

import (
	"errors"
	"path/filepath"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/httputil"
	"github.com/parley-chat/parley-server/internal/user"
)

// AdminHandler serves the admin panel and the user CRUD API behind it. All routes are gated by RequireAdmin.
type AdminHandler struct {
	users     user.Repository
	staticDir string
	log       zerolog.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(users user.Repository, staticDir string, logger zerolog.Logger) *AdminHandler {
	return &AdminHandler{users: users, staticDir: staticDir, log: logger}
}

// Panel handles GET /admin/panel.
func (h *AdminHandler) Panel(c fiber.Ctx) error {
	return c.SendFile(filepath.Join(h.staticDir, "admin.html"))
}

// ListUsers handles GET /admin/api/users.
func (h *AdminHandler) ListUsers(c fiber.Ctx) error {
	users, err := h.users.List(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list users")
		return httputil.Fail(c, fiber.StatusInternalServerError, "failed to list users")
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, toUserResponse(&users[i]))
	}
	return httputil.OK(c, fiber.Map{"users": out})
}

// createUserRequest is the body of POST /admin/api/users. The UUID is optional; one is assigned server-side when
// absent.
type createUserRequest struct {
	UUID     string `json:"uuid"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// CreateUser handles POST /admin/api/users.
func (h *AdminHandler) CreateUser(c fiber.Ctx) error {
	var req createUserRequest
	if err := c.Bind().Body(&req); err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid request body")
	}

	username, err := user.ValidateUsername(req.Username)
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, err.Error())
	}

	id := uuid.New()
	if req.UUID != "" {
		id, err = uuid.Parse(req.UUID)
		if err != nil {
			return httputil.Fail(c, fiber.StatusBadRequest, "invalid user uuid")
		}
	}

	u := user.User{
		UUID:     id,
		Username: username,
		IsAdmin:  req.IsAdmin,
	}
	if err := h.users.Create(c.Context(), u); err != nil {
		if errors.Is(err, user.ErrAlreadyExists) {
			return httputil.Fail(c, fiber.StatusBadRequest, "user already exists")
		}
		h.log.Error().Err(err).Msg("Failed to create user")
		return httputil.Fail(c, fiber.StatusInternalServerError, "failed to create user")
	}

	return httputil.OKStatus(c, fiber.StatusCreated, fiber.Map{"user": toUserResponse(&u)})
}

// DeleteUser handles DELETE /admin/api/users. The target is named by the "uuid" query parameter; admins cannot
// delete their own account.
func (h *AdminHandler) DeleteUser(c fiber.Ctx) error {
	id, err := uuid.Parse(fiber.Query[string](c, "uuid"))
	if err != nil {
		return httputil.Fail(c, fiber.StatusBadRequest, "invalid user uuid")
	}

	if caller := CurrentUser(c); caller != nil && caller.UUID == id {
		return httputil.Fail(c, fiber.StatusBadRequest, "cannot delete your own account")
	}

	if err := h.users.Delete(c.Context(), id); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return httputil.Fail(c, fiber.StatusNotFound, "unknown user")
		}
		h.log.Error().Err(err).Msg("Failed to delete user")
		return httputil.Fail(c, fiber.StatusInternalServerError, "failed to delete user")
	}

	return httputil.OK(c, fiber.Map{})
}
