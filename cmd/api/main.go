package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simodapi/docs"
	"simodapi/internal/config"
	"simodapi/internal/database"
	"simodapi/internal/database/migration"
	handlers "simodapi/internal/http/handler"
	"simodapi/internal/http/middleware"
	"simodapi/internal/otel"
	"simodapi/internal/repository/postgres"
	"simodapi/internal/service"
	"simodapi/internal/simod"
	"simodapi/internal/storage"
)

// @title Simod HTTP API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	ctx := context.Background()

	// Initialize tracing; degrades to a no-op provider when the exporter is unreachable
	shutdownTracing, err := otel.Init(ctx, time.UTC)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, time.UTC, cfg.Database.Host); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	// Initialize the Simod CLI runner and verify the container has what it needs
	runner := simod.NewRunner(cfg.Simod)
	if err := runner.AssertReady(ctx); err != nil {
		log.Fatalf("simod runner not ready: %v", err)
	}

	// Initialize repositories and services
	discRepo := postgres.NewDiscoveryPostgres(db)
	discSvc := service.NewDiscoveryService(runner, objStore, discRepo)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// Event logs can be large; the default 4MB limit is far too small.
		BodyLimit: 512 * 1024 * 1024,
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs; SIMOD_HTTP_DEBUG
	// adds per-request detail (query string, client IP, user agent)
	app.Use(middleware.Logger(cfg.Debug))
	// Permissive CORS so the companion front-end can call the API cross-origin
	app.Use(middleware.CORS())
	app.Use(otelfiber.Middleware())

	// Prometheus request metrics with a dedicated registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMW, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatalf("failed to register prometheus middleware: %v", err)
	}
	app.Use(promMW.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Register HTTP routes with injected service
	handlers.RegisterRoutes(app, db, discSvc)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	addr := ":" + cfg.Port

	go func() {
		if err := app.Listen(addr); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	// Stop accepting requests, then let in-flight mining runs settle their state.
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
	discSvc.Wait()
	if err := shutdownTracing(ctx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
}
