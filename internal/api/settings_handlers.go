package api

import (
	"errors"
	"time"

	"fitremind/internal/database"
	"fitremind/internal/engine"
	"fitremind/internal/models"

	"github.com/gofiber/fiber/v2"
)

func GetSettingsHandler(e *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := e.Settings(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Settings storage unavailable")
		}
		return c.JSON(st)
	}
}

func UpdateSettingsHandler(e *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var cfg models.ReminderConfig
		if err := c.BodyParser(&cfg); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
		if err := e.UpdateConfig(c.UserContext(), cfg); err != nil {
			if errors.Is(err, models.ErrInvalidConfig) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return err
		}
		return c.JSON(e.Config())
	}
}

// PostMessageHandler accepts foreground -> background messages. Delivery is
// fire-and-forget, so the response carries no outcome.
func PostMessageHandler(e *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var msg models.Message
		if err := c.BodyParser(&msg); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}

		var err error
		switch msg.Type {
		case models.MessageUpdateReminders:
			if msg.Config == nil {
				return fiber.NewError(fiber.StatusBadRequest, "Missing config")
			}
			err = e.UpdateConfig(c.UserContext(), *msg.Config)
		case models.MessageCancelReminders:
			err = e.Cancel(c.UserContext())
		default:
			return fiber.NewError(fiber.StatusBadRequest, "Unknown message type")
		}
		if errors.Is(err, models.ErrInvalidConfig) {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

func StatusHandler(e *engine.Engine) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(e.Status(c.UserContext()))
	}
}

// StatsHandler returns completed repetitions per exercise. The optional
// "days" query limits the range; the default is one week.
func StatsHandler(completions *database.Completions) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if completions == nil {
			return fiber.NewError(fiber.StatusNotFound, "Exercise log not enabled")
		}
		days := c.QueryInt("days", 7)
		if days <= 0 {
			return fiber.NewError(fiber.StatusBadRequest, "days must be positive")
		}
		since := time.Now().AddDate(0, 0, -days)
		totals, err := completions.Totals(c.UserContext(), since)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"since":  since.UTC(),
			"totals": totals,
		})
	}
}
