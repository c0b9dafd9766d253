// main.go
//
// QA test management service
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of qatrack.
// qatrack is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// qatrack is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with qatrack.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"
	"github.com/localnerve/qatrack/internal/auth"
	"github.com/localnerve/qatrack/internal/config"
	"github.com/localnerve/qatrack/internal/database"
	"github.com/localnerve/qatrack/internal/evidence"
	"github.com/localnerve/qatrack/internal/handlers"
	"github.com/localnerve/qatrack/internal/middleware"
	"github.com/localnerve/qatrack/internal/services"

	_ "github.com/localnerve/qatrack/docs/api" // Swagger docs
)

// @title QATrack API
// @version 1.0.0
// @description Test management service: projects, demands, scenarios, evidence and QA statistics
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/localnerve/qatrack

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

// bodyLimit leaves room for multipart overhead above the evidence cap
const bodyLimit = handlers.MaxEvidenceSize + 5<<20

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	// Run auto-migrations
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		log.Fatalf("Failed to create token issuer: %v", err)
	}

	store := evidence.NewStore(cfg.EvidenceDir)
	if err := os.MkdirAll(cfg.EvidenceDir, 0o755); err != nil {
		log.Fatalf("Failed to create evidence directory %s: %v", cfg.EvidenceDir, err)
	}

	// Email transport, stored settings override the environment
	defaults := services.EmailSettingsFromConfig(cfg)
	settings, err := services.LoadEmailSettings(db, defaults)
	if err != nil {
		log.Printf("Failed to load stored email settings, using environment: %v", err)
		settings = defaults
	}
	mailer := services.NewMailer(settings)
	dispatcher := services.NewDispatcher(db, mailer, cfg.EmailMaxAttempts)

	scheduler, err := dispatcher.Schedule(cfg.EmailRetrySchedule)
	if err != nil {
		log.Fatalf("Failed to schedule email retries: %v", err)
	}
	defer scheduler.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    bodyLimit,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(compress.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORSOrigins,
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization",
		ExposeHeaders: "X-Request-ID",
	}))

	// Prometheus metrics
	prometheus := fiberprometheus.New("qatrack")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API routes under /api
	api := app.Group("/api")
	api.Use(middleware.RequestContext())

	handlers.RegisterRoutes(api, handlers.Dependencies{
		Config:      cfg,
		DB:          db,
		Issuer:      issuer,
		Audit:       services.NewRecorder(db),
		Evidence:    store,
		Mailer:      mailer,
		Email:       dispatcher,
		Defaults:    defaults,
		LoginLimits: middleware.NewRateLimiter(cfg.LoginRatePerMinute),
	})

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		log.Println("Gracefully shutting down...")
		_ = app.Shutdown()
	}()

	// Start server
	port := strings.TrimPrefix(cfg.Port, ":")
	log.Printf("Starting server on port %s (database %s)", port, cfg.DBType)
	if err := app.Listen(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	log.Println("Server stopped")
}
