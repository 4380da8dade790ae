package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/vehiclehistory/pkg/store"
)

func HealthRouter(router fiber.Router, s store.Store) {
	router.Get("/", func(c *fiber.Ctx) error {
		if err := s.Ping(c.UserContext()); err != nil {
			c.SendStatus(fiber.StatusInternalServerError)
			return c.JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		return c.JSON(fiber.Map{
			"status": "ok",
		})
	})
}
