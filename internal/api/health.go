package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/parley-chat/parley-server/internal/gateway"
)

// HealthHandler serves the health check endpoint.
type HealthHandler struct {
	db  *pgxpool.Pool
	rdb *redis.Client
	hub *gateway.Hub
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client, hub *gateway.Hub) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb, hub: hub}
}

// Health handles GET /health. Pings PostgreSQL and Valkey and reports per-component status plus the live session
// count.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 3*time.Second)
	defer cancel()

	pgStatus := "ok"
	if err := h.db.Ping(ctx); err != nil {
		pgStatus = "unavailable"
	}

	vkStatus := "ok"
	if err := h.rdb.Ping(ctx).Err(); err != nil {
		vkStatus = "unavailable"
	}

	overall := "ok"
	status := fiber.StatusOK
	if pgStatus != "ok" || vkStatus != "ok" {
		overall = "degraded"
		status = fiber.StatusServiceUnavailable
	}

	return c.Status(status).JSON(fiber.Map{
		"status":   overall,
		"postgres": pgStatus,
		"valkey":   vkStatus,
		"sessions": h.hub.SessionCount(),
	})
}
