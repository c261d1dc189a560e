package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/gitsum/internal/port"
)

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, port.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, port.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, port.ErrRepositoryNotReady):
		return fiber.StatusConflict
	case errors.Is(err, port.ErrTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, port.ErrModelUnavailable), errors.Is(err, port.ErrExternalTool):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as {"error", "kind"} with the mapped status.
// Internal failures are logged and their details hidden from the client.
func respondError(c fiber.Ctx, err error) error {
	status := statusFor(err)
	msg := err.Error()
	if status == fiber.StatusInternalServerError {
		slog.Error("request failed", "path", c.Path(), "error", err)
		msg = "internal error"
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"kind":  port.Kind(err),
	})
}
