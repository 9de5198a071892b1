package api

import (
	"fitremind/internal/engine"

	"github.com/gofiber/fiber/v2"
)

func VisibilityHandler(e *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Visible *bool `json:"visible"`
		}
		if err := c.BodyParser(&body); err != nil || body.Visible == nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		e.VisibilityChanged(*body.Visible)
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// WakeHandler runs one background agent invocation. The agent never fails
// the wakeup, so the response is always 202 with the outcome for diagnostics.
func WakeHandler(e *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		res := e.Wake(c.UserContext())
		return c.Status(fiber.StatusAccepted).JSON(res)
	}
}

// SyncHandler is the host's connectivity-restored signal.
func SyncHandler(e *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ran := e.Reconnected(c.UserContext())
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"ran": ran})
	}
}
