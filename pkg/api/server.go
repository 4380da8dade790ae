package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/travigo/vehiclehistory/pkg/api/routes"
	"github.com/travigo/vehiclehistory/pkg/query"
)

func NewApp(queryService *query.Service) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())

	webApp.Get("version", routes.APIVersion)

	routes.HealthRouter(webApp.Group("/health"), queryService.Store)
	routes.VehiclesRouter(webApp.Group("/vehicles"), queryService)

	return webApp
}
