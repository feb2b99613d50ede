package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"inventory-service/internal/alerting"
	"inventory-service/internal/config"
	"inventory-service/internal/events"
	"inventory-service/internal/handlers"
	"inventory-service/internal/ledger"
	"inventory-service/internal/middleware"
	"inventory-service/internal/models"
	"inventory-service/internal/repository"

	gosharedmw "github.com/Tesseract-Nexus/go-shared/middleware"
	"github.com/Tesseract-Nexus/go-shared/rbac"
	"github.com/Tesseract-Nexus/go-shared/tracing"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	// Auto-migrate models
	if err := db.AutoMigrate(
		&models.InventoryItem{},
		&models.StockMovement{},
		&models.Lot{},
		&models.AlertRule{},
		&models.Alert{},
		&models.Escalation{},
	); err != nil {
		log.Fatal("Failed to migrate database:", err)
	}

	// Initialize logrus logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize NATS event publisher (optional - graceful degradation if NATS unavailable)
	var eventPublisher *events.InventoryEventPublisher
	if cfg.NATSURL != "" {
		eventPublisher, err = events.NewInventoryEventPublisher(cfg.NATSURL, logger)
		if err != nil {
			log.Printf("Warning: Failed to initialize NATS event publisher: %v", err)
			log.Println("Continuing without event publishing...")
			eventPublisher = nil
		} else {
			log.Println("✓ Connected to NATS JetStream for event publishing")
			defer eventPublisher.Close()
		}
	} else {
		log.Println("NATS_URL not configured, event publishing disabled")
	}

	// A nil *InventoryEventPublisher must stay a nil interface downstream
	var publisher alerting.EventPublisher
	if eventPublisher != nil {
		publisher = eventPublisher
	}

	// Initialize Redis (optional - cache degrades to direct reads)
	redisClient := config.InitRedis(cfg)
	if redisClient != nil {
		log.Println("✓ Redis cache enabled")
	}

	// Initialize repositories
	inventoryRepo := repository.NewInventoryRepository(db, redisClient)
	alertRepo := repository.NewAlertRepository(db)

	// Initialize services
	ledgerService := ledger.NewService(inventoryRepo, logger, cfg.ExpiryWarningDays, cfg.ExpiryCriticalDays)

	dispatcher := alerting.NewLogDispatcher(logger)
	executor := alerting.NewActionExecutor(dispatcher, ledgerService, cfg.WebhookTimeout, logger)
	scheduler := alerting.NewEscalationScheduler(alertRepo, inventoryRepo, executor, publisher, logger)
	alertService := alerting.NewService(alertRepo, inventoryRepo, scheduler, publisher, logger)

	// Threshold findings from stock mutations flow into the alert service
	ledgerService.SetNotifier(alertService)

	// Re-arm escalations that were pending when the process last stopped
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := scheduler.RestoreOnStartup(ctx); err != nil {
		log.Printf("Warning: Failed to restore pending escalations: %v", err)
	}

	// Start the rule engine sweep loop
	engine := alerting.NewEngine(alertRepo, inventoryRepo, alertService, executor, scheduler, logger, cfg.RuleEngineInterval)
	go engine.Start(ctx)

	// Initialize handlers
	inventoryHandler := handlers.NewInventoryHandler(ledgerService, inventoryRepo, eventPublisher)
	alertHandler := handlers.NewAlertHandler(alertService)
	importHandler := handlers.NewImportHandler(ledgerService)

	// Initialize OpenTelemetry tracing
	var tracerProvider *tracing.TracerProvider
	if cfg.Environment == "production" {
		tracerProvider, err = tracing.InitTracer(tracing.ProductionConfig("inventory-service"))
	} else {
		tracerProvider, err = tracing.InitTracer(tracing.DefaultConfig("inventory-service"))
	}
	if err != nil {
		log.Printf("WARNING: Failed to initialize tracing: %v (continuing without tracing)", err)
	} else {
		log.Println("✓ OpenTelemetry tracing initialized")
	}

	// Initialize Prometheus metrics
	metrics := gosharedmw.InitGlobalMetrics("tesseract", "inventory_service")
	log.Println("✓ Prometheus metrics initialized")

	// Initialize RBAC middleware
	staffServiceURL := os.Getenv("STAFF_SERVICE_URL")
	if staffServiceURL == "" {
		staffServiceURL = "http://staff-service:8080"
	}
	rbacMiddleware := rbac.NewMiddlewareWithURL(staffServiceURL, nil)
	log.Println("✓ RBAC middleware initialized")

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	// Add observability middleware (metrics + tracing)
	router.Use(metrics.Middleware())
	router.Use(tracing.GinMiddleware("inventory-service"))

	// Add CORS middleware
	router.Use(middleware.CORS())

	// Health check endpoints (no auth required)
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", inventoryHandler.ExtendedHealthCheck)
	router.GET("/metrics", gosharedmw.Handler())

	// Protected API routes
	api := router.Group("/api/v1")

	// Authentication middleware using Istio JWT claims
	// Istio validates JWT and injects x-jwt-claim-* headers
	api.Use(gosharedmw.IstioAuth(gosharedmw.IstioAuthConfig{
		RequireAuth:        true,
		AllowLegacyHeaders: false,
		SkipPaths:          []string{"/health", "/ready", "/metrics", "/swagger"},
	}))

	// Item routes with RBAC
	items := api.Group("/items")
	{
		items.POST("", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), inventoryHandler.CreateItem)
		items.GET("", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), inventoryHandler.ListItems)
		items.GET("/:id", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), inventoryHandler.GetItem)
		items.PUT("/:id", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), inventoryHandler.UpdateItem)
		items.DELETE("/:id", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), inventoryHandler.DeleteItem)

		// Stock operations
		items.POST("/:id/movements", rbacMiddleware.RequirePermission(rbac.PermissionInventoryAdjust), inventoryHandler.ApplyMovement)
		items.GET("/:id/movements", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), inventoryHandler.ListMovements)
		items.POST("/:id/reserve", rbacMiddleware.RequirePermission(rbac.PermissionInventoryAdjust), inventoryHandler.Reserve)
		items.POST("/:id/release", rbacMiddleware.RequirePermission(rbac.PermissionInventoryAdjust), inventoryHandler.Release)
		items.POST("/:id/consume", rbacMiddleware.RequirePermission(rbac.PermissionInventoryAdjust), inventoryHandler.Consume)

		// Lots
		items.POST("/:id/lots", rbacMiddleware.RequirePermission(rbac.PermissionInventoryAdjust), inventoryHandler.ReceiveLot)
		items.GET("/:id/lots", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), inventoryHandler.ListLots)

		// Import
		items.GET("/import/template", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), importHandler.GetItemImportTemplate)
		items.POST("/import", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), importHandler.ImportItems)
	}

	// Stock reconciliation with RBAC
	stock := api.Group("/stock")
	{
		stock.GET("/reconcile", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), inventoryHandler.ReconcileLots)
	}

	// Alert routes with RBAC
	alerts := api.Group("/alerts")
	{
		alerts.GET("", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), alertHandler.ListAlerts)
		alerts.GET("/summary", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), alertHandler.GetAlertSummary)
		alerts.GET("/:id", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), alertHandler.GetAlert)
		alerts.PATCH("/:id/status", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), alertHandler.UpdateAlertStatus)
	}

	// Alert rule routes with RBAC
	alertRules := api.Group("/alert-rules")
	{
		alertRules.POST("", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), alertHandler.CreateRule)
		alertRules.GET("", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), alertHandler.ListRules)
		alertRules.GET("/:id", rbacMiddleware.RequirePermission(rbac.PermissionInventoryRead), alertHandler.GetRule)
		alertRules.PUT("/:id", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), alertHandler.UpdateRule)
		alertRules.DELETE("/:id", rbacMiddleware.RequirePermission(rbac.PermissionInventoryUpdate), alertHandler.DeleteRule)
	}

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "8088"
	}

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Inventory service starting on port %s", port)
		if err := router.Run(":" + port); err != nil {
			log.Fatal("Failed to start server:", err)
		}
	}()

	// Wait for interrupt signal
	<-quit
	log.Println("Shutting down inventory-service...")

	// Stop background workers before closing outbound connections
	engine.Stop()
	scheduler.Stop()
	cancel()

	// Shutdown tracer provider
	if tracerProvider != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		} else {
			log.Println("✓ Tracer provider shut down")
		}
	}

	log.Println("Inventory service stopped")
}
