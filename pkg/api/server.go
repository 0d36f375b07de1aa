package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/railwatch/railwatch/pkg/api/routes"
	"github.com/railwatch/railwatch/pkg/scheduler"
)

func SetupServer(rideScheduler *scheduler.RideScheduler) *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})
	webApp.Use(NewLogger())

	webApp.Get("/core/version", routes.APIVersion)

	routes.RidesRouter(webApp.Group("/rides"), rideScheduler)

	return webApp
}
