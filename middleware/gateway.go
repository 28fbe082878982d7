package middleware

import (
	"crypto/subtle"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"ecodigital/metrics"
)

// ServiceToken guards internal endpoints such as /metrics with a static
// bearer token. An empty token leaves the route open.
func ServiceToken(expected string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if expected == "" {
			return c.Next()
		}
		got := BearerToken(c)
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "service token missing"})
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid service token"})
		}
		return c.Next()
	}
}

// RequestLogger logs each request and records its latency under the matched
// route pattern.
func RequestLogger(log *zap.Logger, m *metrics.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Let the app's error handler write the response first.
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		elapsed := time.Since(start)
		status := c.Response().StatusCode()
		route := c.Route().Path

		m.ObserveRequest(c.Method(), route, status, elapsed)
		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("ip", c.IP()),
		}
		if id, ok := c.Locals(UserIDKey).(string); ok {
			fields = append(fields, zap.String("user_id", id))
		}
		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
		return nil
	}
}
