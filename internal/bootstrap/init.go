// Package bootstrap seeds the store on startup: the default voice room and, when configured, the admin account.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/config"
	"github.com/parley-chat/parley-server/internal/room"
	"github.com/parley-chat/parley-server/internal/user"
)

// Seed ensures the default room exists and creates the admin account named by ADMIN_UUID/ADMIN_USERNAME when it is
// not already present. Safe to call on every startup.
func Seed(ctx context.Context, users user.Repository, rooms room.Repository, cfg *config.Config, logger zerolog.Logger) error {
	if err := rooms.EnsureDefaults(ctx); err != nil {
		return err
	}

	if cfg.AdminUUID == "" || cfg.AdminUsername == "" {
		logger.Warn().Msg("ADMIN_UUID/ADMIN_USERNAME not set, skipping admin account seed")
		return nil
	}

	adminUUID, err := uuid.Parse(cfg.AdminUUID)
	if err != nil {
		return fmt.Errorf("invalid ADMIN_UUID: %w", err)
	}

	username, err := user.ValidateUsername(cfg.AdminUsername)
	if err != nil {
		return fmt.Errorf("invalid ADMIN_USERNAME: %w", err)
	}

	_, err = users.GetByUUID(ctx, adminUUID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("check admin account: %w", err)
	}

	if err := users.Create(ctx, user.User{UUID: adminUUID, Username: username, IsAdmin: true}); err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}
	logger.Info().Str("username", username).Msg("Admin account created")
	return nil
}
