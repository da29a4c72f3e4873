package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/recondesk/recon-api/internal/annotation"
	"github.com/recondesk/recon-api/internal/auth"
	"github.com/recondesk/recon-api/internal/config"
	"github.com/recondesk/recon-api/internal/database"
	"github.com/recondesk/recon-api/internal/recon"
	"github.com/recondesk/recon-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the reconciliation API server with graceful
// shutdown support. It wires the database, the narrative annotation
// collaborator, the background annotation processor, and the API routes.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.DatabasePath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret)

	// The narrative collaborator is an explicit dependency of the
	// annotation runner; nothing below holds a global client.
	annotator := annotation.NewClient(cfg.NarrativeURL, cfg.NarrativeAPIKey, cfg.NarrativeTimeout)
	runner := annotation.NewRunner(annotator, cfg.AnnotationMaxConcurrent, cfg.AnnotationBudgetUSD)

	reconService := recon.NewService(db, runner)
	reconHandlers := recon.NewGinHandlers(reconService)

	// Create and start annotation processor
	annotationProcessor := recon.NewProcessor(reconService, cfg.ProcessorInterval)
	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()

	go annotationProcessor.Start(processorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.JWTSecret, authHandlers, reconHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Reconciliation routes: Protected by JWT authentication
// - Internal routes: Protected by internal network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	reconHandlers *recon.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Reconciliation routes
		reconciliations := v1.Group("/reconciliations")
		reconciliations.Use(middleware.JWTAuth(jwtSecret))
		{
			reconciliations.POST("", reconHandlers.CreateReconciliationHandler())
			reconciliations.GET("/:run_id", reconHandlers.GetRunHandler())
			reconciliations.GET("/:run_id/breaks", reconHandlers.GetBreaksHandler())
			reconciliations.GET("/:run_id/summary", reconHandlers.GetSummaryHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/annotation/:run_id", reconHandlers.QueueAnnotationHandler())
		}
	}
}
