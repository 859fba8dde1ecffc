package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/parley-chat/parley-server/internal/api"
	"github.com/parley-chat/parley-server/internal/bootstrap"
	"github.com/parley-chat/parley-server/internal/config"
	"github.com/parley-chat/parley-server/internal/gateway"
	"github.com/parley-chat/parley-server/internal/httputil"
	"github.com/parley-chat/parley-server/internal/media"
	"github.com/parley-chat/parley-server/internal/message"
	"github.com/parley-chat/parley-server/internal/postgres"
	"github.com/parley-chat/parley-server/internal/room"
	"github.com/parley-chat/parley-server/internal/turn"
	"github.com/parley-chat/parley-server/internal/user"
	"github.com/parley-chat/parley-server/internal/valkey"
)

func main() {
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := setupLogger(cfg); err != nil {
		return err
	}

	log.Info().Str("env", cfg.ServerEnv).Msg("Starting Parley Server")

	ctx := context.Background()

	// Connect PostgreSQL
	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConn, cfg.DatabaseMinConn)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()
	log.Info().Msg("PostgreSQL connected")

	// Run migrations
	if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	log.Info().Msg("Database migrations complete")

	// Connect Valkey
	rdb, err := valkey.Connect(ctx, cfg.ValkeyURL, 5*time.Second)
	if err != nil {
		return fmt.Errorf("connect valkey: %w", err)
	}
	defer rdb.Close()
	log.Info().Msg("Valkey connected")

	// Repositories
	userRepo := user.NewPGRepository(db, log.Logger)
	roomRepo := room.NewPGRepository(db, log.Logger)
	messageRepo := message.NewPGRepository(db, cfg.MaxChatMessages, log.Logger)

	// Seed the default room and the admin account.
	if err := bootstrap.Seed(ctx, userRepo, roomRepo, cfg, log.Logger); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	// Media storage
	if err := os.MkdirAll(cfg.MediaDir, 0o755); err != nil {
		return fmt.Errorf("create media directory: %w", err)
	}
	storage, err := media.NewLocalStorage(cfg.MediaDir, "")
	if err != nil {
		return fmt.Errorf("open media storage: %w", err)
	}
	defer func() { _ = storage.Close() }()

	// Signaling hub
	reconnectStore := gateway.NewReconnectStore(rdb, cfg.ReconnectTTL)
	hub := gateway.NewHub(roomRepo, messageRepo, storage, reconnectStore, cfg.PingInterval, log.Logger)

	pingerCtx, pingerCancel := context.WithCancel(ctx)
	defer pingerCancel()
	go func() {
		if err := hub.RunPinger(pingerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Pinger stopped")
		}
	}()

	// TURN credential minter
	minter := turn.NewMinter(cfg.TURNSecretKey, cfg.TURNCredTTL)

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:   "Parley",
		BodyLimit: cfg.BodyLimitBytes(),
		// ErrorHandler catches errors returned by handlers that are not already mapped to structured API responses
		// (e.g. Fiber's built-in 404/405).
		ErrorHandler: func(c fiber.Ctx, err error) error {
			status := fiber.StatusInternalServerError
			message := "an internal error occurred"
			if e, ok := errors.AsType[*fiber.Error](err); ok {
				status = e.Code
				message = e.Message
			} else {
				log.Error().Err(err).
					Str("method", c.Method()).
					Str("path", c.Path()).
					Msg("Unhandled error")
			}
			return httputil.Fail(c, status, message)
		},
	})

	// Global middleware
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format:     "${time} ${locals:requestid} ${method} ${path} ${status} ${latency}\n",
		TimeFormat: time.RFC3339,
	}))

	api.Register(app, api.Deps{
		Cfg:      cfg,
		DB:       db,
		RDB:      rdb,
		Users:    userRepo,
		Rooms:    roomRepo,
		Messages: messageRepo,
		Storage:  storage,
		Hub:      hub,
		Minter:   minter,
		Log:      log.Logger,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info().Msg("Shutting down server")
		pingerCancel()
		hub.Shutdown()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	listenCfg := fiber.ListenConfig{DisableStartupMessage: true}
	if cfg.UseTLS() {
		listenCfg.CertFile = cfg.TLSCertFile
		listenCfg.CertKeyFile = cfg.TLSKeyFile
	}

	log.Info().Str("addr", addr).Str("protocol", cfg.Protocol).Msg("Server listening")
	if err := app.Listen(addr, listenCfg); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// setupLogger configures the global logger: console output in development, JSON otherwise, duplicated into
// LOG_FILEPATH when set.
func setupLogger(cfg *config.Config) error {
	var console io.Writer = os.Stderr
	if cfg.IsDevelopment() {
		console = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	writer := console
	if cfg.LogFilepath != "" {
		f, err := os.OpenFile(cfg.LogFilepath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		writer = zerolog.MultiLevelWriter(console, f)
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	return nil
}
