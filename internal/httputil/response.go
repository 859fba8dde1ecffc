package httputil

import (
	"github.com/gofiber/fiber/v3"
)

// statusResponse is the envelope for successful API responses. Handlers pass a fiber.Map whose keys are merged next to
// the status field, matching the wire format the desktop client expects.
type statusResponse map[string]any

// ErrorResponse is the envelope for failed API responses.
type ErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// OK sends a 200 response of the form {"status":"ok", ...fields}.
func OK(c fiber.Ctx, fields fiber.Map) error {
	return OKStatus(c, fiber.StatusOK, fields)
}

// OKStatus sends a {"status":"ok", ...fields} response with a custom status code.
func OKStatus(c fiber.Ctx, status int, fields fiber.Map) error {
	body := statusResponse{"status": "ok"}
	for k, v := range fields {
		body[k] = v
	}
	return c.Status(status).JSON(body)
}

// Fail sends a {"status":"error","error":message} response with the given status code.
func Fail(c fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(ErrorResponse{Status: "error", Error: message})
}
