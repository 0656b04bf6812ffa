package middleware

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is a middleware that logs each HTTP request in JSON format.
// Required fields:
// - request_id (taken from context locals set by RequestID middleware)
// - method
// - path
// - status
// - latency (in milliseconds, as float)
// With debug enabled each line also carries the query string, client IP and
// user agent.
func Logger(debug bool) fiber.Handler {
	return LoggerWithWriter(os.Stdout, time.UTC, debug)
}

// LoggerWithWriter is Logger with an injectable destination and timezone,
// used by tests and non-stdout deployments.
func LoggerWithWriter(w io.Writer, loc *time.Location, debug bool) fiber.Handler {
	// One JSON object per line.
	enc := json.NewEncoder(w)

	return func(c *fiber.Ctx) error {
		start := time.Now()

		// Process request
		err := c.Next()

		// Collect fields after handler executed to capture final status
		rid, _ := c.Locals(RequestIDLocalKey).(string)
		method := c.Method()
		// Use only the path segment (no query string)
		path := c.Path()
		status := c.Response().StatusCode()
		latency := float64(time.Since(start).Milliseconds())

		fields := map[string]any{
			"ts":         time.Now().In(loc).Format(time.RFC3339Nano),
			"request_id": rid,
			"method":     method,
			"path":       path,
			"status":     status,
			"latency":    latency,
		}
		if debug {
			fields["query"] = string(c.Request().URI().QueryString())
			fields["ip"] = c.IP()
			fields["user_agent"] = c.Get(fiber.HeaderUserAgent)
		}
		_ = enc.Encode(fields)

		return err
	}
}
