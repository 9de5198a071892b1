package api

import (
	"fitremind/internal/database"
	"fitremind/internal/engine"

	"github.com/gofiber/fiber/v2"
)

// VapidPublicKeyHandler returns the VAPID public key for client subscription
func VapidPublicKeyHandler(publicKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if publicKey == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Push notifications not configured")
		}
		return c.JSON(fiber.Map{
			"publicKey": publicKey,
		})
	}
}

// SubscribePushHandler stores the subscription. Subscribing is an explicit
// grant, so a latched permission denial is lifted.
func SubscribePushHandler(e *engine.Engine, subs *database.Subscriptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if subs == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Push subscriptions need a SQL store")
		}

		var sub database.PushSubscription
		if err := c.BodyParser(&sub); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Missing subscription fields")
		}

		if err := subs.Upsert(c.UserContext(), sub); err != nil {
			return err
		}
		e.PermissionGranted()

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true})
	}
}

func UnsubscribePushHandler(subs *database.Subscriptions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if subs == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Push subscriptions need a SQL store")
		}

		var body struct {
			Endpoint string `json:"endpoint"`
		}
		if err := c.BodyParser(&body); err != nil || body.Endpoint == "" {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		if err := subs.Delete(c.UserContext(), body.Endpoint); err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true})
	}
}
