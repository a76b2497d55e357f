package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	"drtguard/handlers"
	"drtguard/models"
	"drtguard/services"
	"drtguard/system"
)

func main() {
	// 0. Initialize Logger
	logDir := os.Getenv("DRT_LOG_DIR")
	if logDir == "" {
		logDir = "./logs"
	}
	if err := system.InitLogger(logDir); err != nil {
		log.Printf("Warning: Could not initialize file logger: %v", err)
	}
	defer system.Close()

	system.Info("DRT behavioral monitor starting...")

	// 1. Setup Database
	dbPath := os.Getenv("DRT_DB_PATH")
	if dbPath == "" {
		dbPath = "drtguard.db"
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{})
	if err != nil {
		system.Error("Failed to connect to database: %v", err)
		log.Fatal("Failed to connect to database:", err)
	}
	system.Info("Database connected: %s", dbPath)

	// Enable WAL Mode for better concurrency. The async writer and the admin
	// API hit the same file; WAL prevents "database is locked" under load.
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		system.Warn("Failed to enable WAL mode: %v", err)
	} else {
		system.Info("SQLite WAL mode enabled")
	}

	// Migrate
	if err := db.AutoMigrate(
		&models.BehavioralSignature{},
		&models.AttackVector{},
		&models.Violation{},
		&models.EscalatedEndpoint{},
		&models.FalsePositive{},
		&models.FalsePositivePattern{},
		&models.Configuration{},
		&models.Admin{},
	); err != nil {
		system.Error("Database migration failed: %v", err)
		log.Fatalf("CRITICAL: Database migration failed. Application cannot start: %v", err)
	}
	system.Info("Database migration completed successfully")

	// Seed default attack vectors if empty
	var vectorCount int64
	db.Model(&models.AttackVector{}).Count(&vectorCount)
	if vectorCount == 0 {
		for _, vector := range models.SeedDefaultVectors() {
			if err := db.Create(&vector).Error; err != nil {
				system.Warn("Failed to seed vector %s %s: %v", vector.Method, vector.PathPattern, err)
			}
		}
		system.Info("Seeded %d default attack vectors", len(models.SeedDefaultVectors()))
	}

	// 2. Setup Services
	configManager, err := services.NewConfigManager(db)
	if err != nil {
		system.Error("Failed to load configuration: %v", err)
		log.Fatalf("CRITICAL: Invalid stored configuration. Application cannot start: %v", err)
	}
	if overridePath := os.Getenv("DRT_OVERRIDE_FILE"); overridePath != "" {
		if err := configManager.WatchOverrides(overridePath); err != nil {
			system.Warn("Could not watch override file %s: %v", overridePath, err)
		}
	}

	weights := services.DefaultSimilarityWeights()
	if err := weights.Validate(); err != nil {
		log.Fatalf("CRITICAL: Invalid similarity weights: %v", err)
	}

	registry := services.NewVectorRegistry(db, weights, 5*time.Minute)
	if err := registry.Start(); err != nil {
		system.Error("Failed to load attack vectors: %v", err)
		log.Fatalf("CRITICAL: Vector registry initialization failed: %v", err)
	}
	system.Info("Vector registry loaded (%d active vectors)", registry.Count())

	history := services.NewBehavioralHistory(weights, 0)

	persistence := services.NewPersistenceAdapter(db, 0)

	// Initialize Webhook Service
	webhookService := services.NewWebhookService()
	if cfg := configManager.Snapshot(); cfg.WebhookURL != "" {
		webhookService.SetWebhookURL(cfg.WebhookURL)
		system.Info("Escalation webhook configured")
	}

	escalations := services.NewEscalationEngine(configManager, persistence, webhookService)
	if err := escalations.Restore(db); err != nil {
		system.Warn("Failed to restore escalation state: %v", err)
	} else {
		system.Info("Restored %d active escalations", escalations.ActiveCount(time.Now()))
	}

	feedback := services.NewFeedbackStore(db)
	if err := feedback.Refresh(); err != nil {
		system.Warn("Failed to load false-positive suppressions: %v", err)
	}

	// Initialize GeoIP service
	geoipService := services.NewGeoIPService()
	if geoipPath := os.Getenv("DRT_GEOIP_DB"); geoipPath != "" {
		if err := geoipService.LoadDatabase(geoipPath); err != nil {
			system.Warn("GeoIP database unavailable, violations will carry country %s", services.CountryUnknown)
		}
	}

	cleanup := services.NewCleanupScheduler(db, configManager, history, escalations, feedback, 5*time.Minute)
	cleanup.Start()
	system.Info("Cleanup scheduler started")

	engine := services.NewDRTEngine(configManager, registry, history, escalations, feedback, persistence, geoipService)

	// 3. Setup Handlers
	h := handlers.NewHandler(db, configManager, registry, history, escalations, feedback, persistence, engine, webhookService)

	app := fiber.New(fiber.Config{
		DisableStartupMessage: false,
	})

	// Add request logging middleware
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
		Output:     os.Stdout,
	}))

	app.Use(cors.New())

	// Behavioral monitoring wraps everything below it
	app.Use(engine.Middleware())

	api := app.Group("/api")

	// ===== Public Routes (No Auth Required) =====
	api.Post("/login", h.Login)

	// ===== Protected Routes (JWT Required) =====
	protected := api.Group("", handlers.JWTAuthMiddleware())

	// Auth
	protected.Put("/auth/password", h.ChangePassword)

	// System Status
	protected.Get("/status", h.GetStatus)
	protected.Get("/events", h.GetEvents)

	// Attack Vectors
	protected.Get("/vectors", h.GetVectors)
	protected.Post("/vectors", h.CreateVector)
	protected.Put("/vectors/:id", h.UpdateVector)
	protected.Delete("/vectors/:id", h.DeleteVector)
	protected.Post("/vectors/reset-stats", h.ResetVectorStats)

	// Escalations
	protected.Get("/escalations", h.GetEscalations)
	protected.Get("/escalations/lookup", h.GetEscalation)
	protected.Post("/escalations", h.CreateEscalation)
	protected.Delete("/escalations/lookup", h.DeleteEscalation)

	// Violations
	protected.Get("/violations", h.GetViolations)
	protected.Get("/violations/stats", h.GetViolationStats)

	// False Positives
	protected.Post("/falsepositives", h.MarkFalsePositive)
	protected.Get("/falsepositives/patterns", h.GetFalsePositivePatterns)

	// Configuration
	protected.Get("/config", h.GetConfiguration)
	protected.Put("/config", h.UpdateConfiguration)
	protected.Post("/webhook/test", h.TestWebhook)

	// Start
	listenAddr := os.Getenv("DRT_LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	system.Info("Server starting on %s", listenAddr)
	handlers.AddEvent("success", "DRT behavioral monitor started")

	// Send Startup Alert
	go func() {
		time.Sleep(2 * time.Second)
		if webhookService.IsEnabled() {
			msg := fmt.Sprintf("DRT behavioral monitor is now running (%s)\nActive vectors: %d",
				time.Now().Format("2006-01-02 15:04:05"), registry.Count())
			webhookService.SendSystemAlert("Monitor Started", msg, services.ColorGreen)
		}
	}()

	// Graceful Shutdown Handling
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c // Wait for signal
		system.Info("Gracefully shutting down...")

		cleanup.Stop(10 * time.Second)
		registry.Stop()
		configManager.Close()
		geoipService.Close()

		// Drain pending audit writes before closing the listener
		persistence.Stop(10 * time.Second)

		if webhookService.IsEnabled() {
			webhookService.SendSystemAlert("Monitor Stopping", "DRT behavioral monitor is shutting down...", services.ColorOrange)
		}

		_ = app.Shutdown()
	}()

	if err := app.Listen(listenAddr); err != nil {
		log.Fatal(err)
	}
}
