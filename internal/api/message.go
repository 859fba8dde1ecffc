package api

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/httputil"
	"github.com/parley-chat/parley-server/internal/message"
)

// MessageHandler serves the chat history endpoint.
type MessageHandler struct {
	messages message.Repository
	log      zerolog.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(messages message.Repository, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, log: logger}
}

// messageResponse is the wire shape of one history entry. Authors deleted since posting come back with null
// user_uuid and username.
type messageResponse struct {
	ID          int64   `json:"id"`
	MessageType string  `json:"message_type"`
	Content     string  `json:"content"`
	UserUUID    *string `json:"user_uuid"`
	Username    *string `json:"username"`
	Datetime    string  `json:"datetime"`
}

// List handles GET /api/messages. Returns the most recent messages, newest first, plus the total persisted count.
func (h *MessageHandler) List(c fiber.Ctx) error {
	limit := fiber.Query[int](c, "limit")

	msgs, err := h.messages.Recent(c.Context(), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to load chat history")
		return httputil.Fail(c, fiber.StatusInternalServerError, "failed to load messages")
	}

	count, err := h.messages.Count(c.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count chat history")
		return httputil.Fail(c, fiber.StatusInternalServerError, "failed to load messages")
	}

	out := make([]messageResponse, 0, len(msgs))
	for _, m := range msgs {
		resp := messageResponse{
			ID:          m.ID,
			MessageType: m.Type,
			Content:     m.Content,
			Username:    m.Username,
			Datetime:    m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if m.UserUUID != nil {
			s := m.UserUUID.String()
			resp.UserUUID = &s
		}
		out = append(out, resp)
	}

	return httputil.OK(c, fiber.Map{"messages": out, "count": count})
}
