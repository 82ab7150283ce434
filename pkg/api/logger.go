package api

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// NewLogger logs every request with a level chosen by status class
func NewLogger() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		startTime := time.Now()
		err = c.Next()

		msg := "HTTP Request"
		if err != nil {
			msg = err.Error()
		}

		code := c.Response().StatusCode()

		ipAddress := c.IP()
		if forwardedFor := c.Get(fiber.HeaderXForwardedFor, ""); forwardedFor != "" {
			ipAddress = forwardedFor
		}

		requestLogger := slog.With(
			"status", code,
			"method", c.Method(),
			"path", c.Path(),
			"ip", ipAddress,
			"latency", time.Since(startTime).String(),
			"user-agent", c.Get(fiber.HeaderUserAgent),
		)

		switch {
		case code >= fiber.StatusBadRequest && code < fiber.StatusInternalServerError:
			requestLogger.Warn(msg)
		case code >= fiber.StatusInternalServerError:
			requestLogger.Error(msg)
		default:
			requestLogger.Info(msg)
		}

		return err
	}
}
