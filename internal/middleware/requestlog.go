package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request id to and from clients.
const RequestIDHeader = "X-Request-ID"

// RequestLogger tags every request with an id and logs its outcome.
// An incoming X-Request-ID is reused; otherwise a new uuid is generated.
func RequestLogger() fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		// Capture request data before the handler runs (Fiber reuses context objects)
		method := c.Method()
		path := c.Path()
		ip := c.IP()

		requestID := c.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals("request_id", requestID)
		c.Set(RequestIDHeader, requestID)

		err := c.Next()

		userID := "anonymous"
		if uc := GetUserContext(c); uc != nil {
			userID = uc.UserID
		}

		slog.Info("http request",
			"request_id", requestID,
			"method", method,
			"path", path,
			"status", c.Response().StatusCode(),
			"duration_ms", time.Since(start).Milliseconds(),
			"user_id", userID,
			"ip", ip,
		)

		return err
	}
}

// GetRequestID returns the id assigned by RequestLogger, if any.
func GetRequestID(c fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}
