package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/parley-chat/parley-server/internal/httputil"
	"github.com/parley-chat/parley-server/internal/turn"
)

// TURNHandler mints relay credentials for the caller.
type TURNHandler struct {
	minter *turn.Minter
}

// NewTURNHandler creates a new TURN credential handler.
func NewTURNHandler(minter *turn.Minter) *TURNHandler {
	return &TURNHandler{minter: minter}
}

// Credentials handles GET /api/get_turn_creds.
func (h *TURNHandler) Credentials(c fiber.Ctx) error {
	u := CurrentUser(c)
	creds := h.minter.Mint(u.UUID)
	return httputil.OK(c, fiber.Map{
		"username": creds.Username,
		"password": creds.Password,
		"ttl":      creds.TTL,
	})
}
