// Package stubserver is a local stand-in for the backend credits ledger. It
// serves the same consumables API contract the client speaks, backed by
// sqlite (or postgres), so applications can develop against the client
// library without the real backend.
package stubserver

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"credits/internal/config"
)

// NewApp wires the stub routes into a Fiber app.
func NewApp(cfg config.StubConfig, store *Store) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	h := NewHandler(store, cfg.JWTSecret)

	app.Post("/auth/token", h.Login)

	api := app.Group("/api/v1/consumables", AuthMiddleware(cfg.JWTSecret))
	api.Get("/balance", h.GetBalance)
	api.Post("/purchase", h.RecordPurchase)
	api.Post("/use", h.RecordUsage)
	api.Get("/purchases", h.ListPurchases)
	api.Get("/usages", h.ListUsages)

	return app
}
