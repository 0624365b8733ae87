package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	pkgvalidator "github.com/talkscope-team/talkscope/pkg/validator"

	"github.com/talkscope-team/talkscope/internal/adapter/handler"
	"github.com/talkscope-team/talkscope/internal/adapter/repository"
	"github.com/talkscope-team/talkscope/internal/infrastructure/cache"
	"github.com/talkscope-team/talkscope/internal/infrastructure/database"
	"github.com/talkscope-team/talkscope/internal/infrastructure/storage"
	"github.com/talkscope-team/talkscope/internal/usecase/pipeline"
	"github.com/talkscope-team/talkscope/pkg/config"
	"github.com/talkscope-team/talkscope/pkg/hume"
)

// @title           TalkScope API
// @version         1.0
// @description     API for analyzing speaker emotions across conversation quintiles

// @host      localhost:8080
// @BasePath  /v1

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(middleware.Recover())

	// CORS middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
	}))

	// Initialize dependencies
	log.Println("🔧 Initializing dependencies...")

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Database
	log.Println("📦 Connecting to database...")
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	// Apply migrations on boot only when enabled. Production deployments
	// run cmd/migrate as a separate step.
	if cfg.Database.AutoMigrate {
		if cfg.Server.Environment == "production" {
			log.Fatalf("DB_AUTO_MIGRATE is enabled in production. Disable it and run cmd/migrate instead.")
		}
		log.Println("🔄 Applying schema migrations...")
		if err := database.AutoMigrate(db); err != nil {
			log.Fatalf("Failed to apply migrations: %v", err)
		}
	} else {
		log.Println("🔄 Skipping schema migrations; run cmd/migrate for schema changes")
	}

	// Initialize artifact storage
	log.Println("🗄️  Initializing artifact storage...")
	store, err := storage.New(&cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}

	// Initialize repositories and clients
	log.Println("⚙️  Initializing analysis pipeline...")
	jobRepo := repository.NewAnalysisJobRepository(db)
	humeClient := hume.NewClient(&cfg.Hume)
	resultCache := cache.NewResultCache()

	pipelineService := pipeline.NewService(jobRepo, store, humeClient, resultCache, cfg, logger)

	// Start background workers that drive queued jobs through Hume and
	// the quintile analysis
	if err := pipelineService.StartWorkerPool(context.Background(), cfg.Worker.Count); err != nil {
		log.Fatalf("Failed to start worker pool: %v", err)
	}

	// Setup router with handlers
	log.Println("🛣️  Setting up routes...")
	analysisController := handler.NewAnalysisController(pipelineService, logger)
	router := handler.NewRouter(cfg, analysisController)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("📝 Environment: %s", cfg.Server.Environment)
		log.Printf("🔗 Health check: http://%s/health", addr)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	if err := pipelineService.StopWorkerPool(); err != nil {
		log.Printf("⚠️  Worker pool shutdown: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}
