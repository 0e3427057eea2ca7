package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/alteralabs/license-server/internal/config"
	"github.com/alteralabs/license-server/internal/database"
	"github.com/alteralabs/license-server/internal/entitlement"
	"github.com/alteralabs/license-server/internal/handlers"
	"github.com/alteralabs/license-server/internal/middleware"
	"github.com/alteralabs/license-server/internal/models"
	"github.com/alteralabs/license-server/internal/services"
	"github.com/alteralabs/license-server/internal/store"
	"github.com/alteralabs/license-server/internal/token"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Connect to database
	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := models.AutoMigrate(database.DB); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Wire the entitlement core
	codec := token.NewCodec(cfg.JWTSecret)
	svc := entitlement.NewService(
		store.NewBanStore(database.DB),
		store.NewLicenseStore(database.DB),
		store.NewActivationStore(database.DB),
		codec,
	)

	// Start the export backup scheduler (no-op unless configured)
	backupService := services.NewBackupSchedulerService(cfg)
	backupService.Start()
	defer backupService.Stop()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "License Server v1.0",
		ServerHeader: "LicenseServer",
		BodyLimit:    1024 * 1024 * 1024 + 1024, // cloud backup uploads up to 1GB
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(compress.New())
	app.Use(middleware.Logger())
	app.Use(middleware.CORS())

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "license-server",
		})
	})

	// Initialize handlers
	licenseHandler := handlers.NewLicenseHandler(svc)
	adminHandler := handlers.NewAdminHandler()
	cloudBackupHandler := handlers.NewCloudBackupHandler(cfg.BackupStorageDir)

	// API routes
	api := app.Group("/api/v1")
	api.Use(middleware.RateLimiter(100, 1*time.Minute))

	// Public license routes
	license := api.Group("/license")
	license.Post("/activate", licenseHandler.Activate)
	license.Post("/validate", licenseHandler.Validate)
	license.Post("/deactivate", licenseHandler.Deactivate)

	// Cloud backup routes (authenticated by X-License-Key header)
	cloudBackup := api.Group("/cloud-backup")
	cloudBackup.Post("/upload", cloudBackupHandler.Upload)
	cloudBackup.Get("/list", cloudBackupHandler.List)
	cloudBackup.Get("/usage", cloudBackupHandler.Usage)
	cloudBackup.Get("/download/:backup_id", cloudBackupHandler.Download)
	cloudBackup.Delete("/:backup_id", cloudBackupHandler.Delete)

	// Admin routes
	admin := api.Group("/admin", middleware.AdminRequired(cfg), middleware.AuditLogger())
	admin.Post("/licenses", adminHandler.CreateLicense)
	admin.Get("/licenses", adminHandler.ListLicenses)
	admin.Patch("/licenses/:key", adminHandler.UpdateLicense)
	admin.Delete("/licenses/:key", middleware.AdminTOTP(cfg), adminHandler.DeleteLicense)
	admin.Put("/licenses/:key/quota", cloudBackupHandler.AdminSetQuota)
	admin.Get("/activations", adminHandler.ListActivations)
	admin.Get("/overview", adminHandler.Overview)
	admin.Post("/bans", adminHandler.BanMachine)
	admin.Get("/bans", adminHandler.ListBans)
	admin.Delete("/bans/:machine_id", adminHandler.UnbanMachine)

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")
		app.Shutdown()
	}()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	log.Printf("License server listening on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
