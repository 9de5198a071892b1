package api

import (
	"errors"

	"fitremind/internal/database"
	"fitremind/internal/engine"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// Deps are the collaborators the HTTP surface needs. Subscriptions and
// Completions are nil unless the settings live in a SQL database.
type Deps struct {
	Engine         *engine.Engine
	Subscriptions  *database.Subscriptions
	Completions    *database.Completions
	VAPIDPublicKey string
	WakeLimiter    *rate.Limiter
}

func SetupRoutes(app *fiber.App, d Deps) {
	api := app.Group("/api")

	api.Get("/settings", GetSettingsHandler(d.Engine))
	api.Put("/settings", UpdateSettingsHandler(d.Engine))
	api.Post("/messages", PostMessageHandler(d.Engine))
	api.Get("/status", StatusHandler(d.Engine))
	api.Get("/stats", StatsHandler(d.Completions))

	// Host lifecycle signals
	api.Post("/visibility", VisibilityHandler(d.Engine))
	api.Post("/wake", RateLimit(d.WakeLimiter), WakeHandler(d.Engine))
	api.Post("/sync", RateLimit(d.WakeLimiter), SyncHandler(d.Engine))

	push := api.Group("/push")
	push.Get("/vapid-public-key", VapidPublicKeyHandler(d.VAPIDPublicKey))
	push.Post("/subscribe", SubscribePushHandler(d.Engine, d.Subscriptions))
	push.Delete("/unsubscribe", UnsubscribePushHandler(d.Subscriptions))

	api.Post("/notifications/:id/actions/:action", NotificationActionHandler(d.Engine))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
