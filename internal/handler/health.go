package handler

import "github.com/gofiber/fiber/v3"

// RegisterHealth mounts the public health check.
func RegisterHealth(router fiber.Router, appName, model string) {
	router.Get("/api/v1/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"app":     appName,
			"model":   model,
			"version": "1.0.0",
		})
	})
}
