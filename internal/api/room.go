package api

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/httputil"
	"github.com/parley-chat/parley-server/internal/room"
)

// RoomHandler serves the voice room catalogue.
type RoomHandler struct {
	rooms room.Repository
	log   zerolog.Logger
}

// NewRoomHandler creates a new room handler.
func NewRoomHandler(rooms room.Repository, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{rooms: rooms, log: logger}
}

// roomResponse is the wire shape of one voice room.
type roomResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// List handles GET /api/rooms.
func (h *RoomHandler) List(c fiber.Ctx) error {
	rooms, err := h.rooms.List(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list voice rooms")
		return httputil.Fail(c, fiber.StatusInternalServerError, "failed to load rooms")
	}

	out := make([]roomResponse, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, roomResponse{ID: r.ID, Name: r.Name})
	}
	return httputil.OK(c, fiber.Map{"rooms": out})
}
