package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS lets the companion web front-end, served from a different origin, call
// this API. The policy is deliberately permissive: the service is a
// local/docker-compose integration shim, not a public endpoint.
func CORS() fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders: "*",
		MaxAge:       3600,
	})
}
