package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"

	"simodapi/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin; the discovery lifecycle lives in the service layer.
func RegisterRoutes(app *fiber.App, db *sql.DB, svc service.DiscoveryService) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	// Health: readiness checks DB connectivity, liveness is a bare probe
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	// Discovery lifecycle
	app.Post("/discoveries", CreateDiscovery(svc))
	app.Get("/discoveries", ListDiscoveries(svc))
	app.Get("/discoveries/:id", GetDiscovery(svc))
	app.Get("/discoveries/:id/:filename", DownloadDiscoveryFile(svc))
	app.Delete("/discoveries/:id", DeleteDiscovery(svc))
}
