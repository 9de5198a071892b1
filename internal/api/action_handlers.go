package api

import (
	"errors"

	"fitremind/internal/actions"
	"fitremind/internal/auth"
	"fitremind/internal/engine"

	"github.com/gofiber/fiber/v2"
)

// NotificationActionHandler applies a notification action posted back by
// the host. The token from the notification data authorizes it.
func NotificationActionHandler(e *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body struct {
			Token string `json:"token"`
		}
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&body); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
			}
		}

		res, err := e.HandleAction(c.UserContext(), c.Params("id"), c.Params("action"), body.Token)
		switch {
		case err == nil:
			return c.JSON(res)
		case errors.Is(err, actions.ErrUnknownAction):
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrInvalidToken):
			return fiber.NewError(fiber.StatusUnauthorized, "Invalid token")
		case errors.Is(err, engine.ErrUnknownNotification):
			return fiber.NewError(fiber.StatusNotFound, "Notification not found")
		default:
			return err
		}
	}
}
