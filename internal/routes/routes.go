package routes

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/ledgercore/internal/config"
	"github.com/congo-pay/ledgercore/internal/ledger"
	"github.com/congo-pay/ledgercore/internal/middleware"
)

// Deps aggregates shared dependencies required to wire routes. DB and Cache
// are optional; Engine is required.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	Engine *ledger.Engine
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Engine == nil {
		return errors.New("ledger engine is required")
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDev() {
		// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}
	app.Use(middleware.AccessLog(d.Logger))

	RegisterHealthRoutes(app, d)

	var storage fiber.Storage
	if d.Cache != nil {
		storage = middleware.NewRedisStorage(d.Cache)
	}

	api := app.Group("/api/v1", middleware.RateLimit(d.Cfg.RateLimitMax, d.Cfg.RateLimitWindow, storage))
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterLedgerRoutes(api, ledger.NewHandler(d.Engine, d.Cfg.FaultInjection))

	app.Use(NotFound)
	return nil
}
