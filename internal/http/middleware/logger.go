package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"dropstack/internal/logger"
)

// ErrorLocalKey holds the internal error text a handler chose not to expose in the response.
const ErrorLocalKey = "error_cause"

// Logger logs one structured entry per HTTP request with the fields
// request_id, method, path, status, latency (milliseconds) and, when authenticated, owner_id.
// 5xx responses are logged at error level and 4xx at warn.
func Logger(base zerolog.Logger) fiber.Handler {
	log := logger.Component(base, "http")

	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := responseStatus(c, err)
		ev := log.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			ev = log.Error()
		case status >= fiber.StatusBadRequest:
			ev = log.Warn()
		}

		rid, _ := c.Locals(RequestIDLocalKey).(string)
		ev = ev.
			Str("request_id", rid).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Float64("latency", float64(time.Since(start).Microseconds())/1000)
		if owner, ok := OwnerFromCtx(c); ok {
			ev = ev.Str("owner_id", owner)
		}
		if cause, ok := c.Locals(ErrorLocalKey).(string); ok {
			ev = ev.Str("error", cause)
		}
		ev.Msg("request")

		return err
	}
}

// LoggerWithWriter is Logger writing JSON lines to w with timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return Logger(logger.NewWithWriter(w, "info", loc))
}
