package api

import (
	"path/filepath"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/static"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/parley-chat/parley-server/internal/config"
	"github.com/parley-chat/parley-server/internal/gateway"
	"github.com/parley-chat/parley-server/internal/media"
	"github.com/parley-chat/parley-server/internal/message"
	"github.com/parley-chat/parley-server/internal/room"
	"github.com/parley-chat/parley-server/internal/turn"
	"github.com/parley-chat/parley-server/internal/user"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Cfg      *config.Config
	DB       *pgxpool.Pool
	RDB      *redis.Client
	Users    user.Repository
	Rooms    room.Repository
	Messages message.Repository
	Storage  media.StorageProvider
	Hub      *gateway.Hub
	Minter   *turn.Minter
	Log      zerolog.Logger
}

// Register wires every route onto the app. Everything except /health and the static file trees sits behind the
// identity middleware; the admin surface is additionally gated on the admin flag.
func Register(app *fiber.App, d Deps) {
	identity := Identity(d.Users, d.Log)

	health := NewHealthHandler(d.DB, d.RDB, d.Hub)
	app.Get("/health", health.Health)

	// Route methods take the handler first, middleware after (Fiber v3).
	app.Get("/", func(c fiber.Ctx) error {
		return c.SendFile(filepath.Join(d.Cfg.StaticDir, "index.html"))
	}, identity)

	gw := NewGatewayHandler(d.Hub)
	app.Get("/ws", gw.Upgrade, identity)

	apiGroup := app.Group("/api", identity)
	messages := NewMessageHandler(d.Messages, d.Log)
	apiGroup.Get("/messages", messages.List)

	users := NewUserHandler()
	apiGroup.Get("/user", users.Me)

	rooms := NewRoomHandler(d.Rooms, d.Log)
	apiGroup.Get("/rooms", rooms.List)

	uploads := NewUploadHandler(d.Storage, d.Messages, d.Cfg.UploadLimitBytes(), d.Cfg.AvatarLimitBytes(), d.Log)
	apiGroup.Post("/upload", uploads.Media)
	apiGroup.Post("/upload_avatar", uploads.Avatar)

	turnHandler := NewTURNHandler(d.Minter)
	apiGroup.Get("/get_turn_creds", turnHandler.Credentials)

	admin := NewAdminHandler(d.Users, d.Cfg.StaticDir, d.Log)
	adminGroup := app.Group("/admin", identity, RequireAdmin())
	adminGroup.Get("/panel", admin.Panel)
	adminGroup.Get("/api/users", admin.ListUsers)
	adminGroup.Post("/api/users", admin.CreateUser)
	adminGroup.Delete("/api/users", admin.DeleteUser)

	// Uploaded media and the client assets are served directly off disk.
	app.Get("/media/*", static.New(d.Cfg.MediaDir))
	app.Get("/static/*", static.New(d.Cfg.StaticDir))
}
