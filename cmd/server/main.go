package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platewise/backend/internal/db"
	"github.com/platewise/backend/internal/logger"
	"github.com/platewise/backend/internal/middleware"
	"github.com/platewise/backend/internal/routes"
	"github.com/platewise/backend/internal/storage"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func corsConfig() cors.Config {
	origin := "http://localhost:5173"
	if os.Getenv("ENV") != "local" && os.Getenv("ENV") != "" {
		if corsOrigin := os.Getenv("CORS_ORIGIN"); corsOrigin != "" {
			origin = corsOrigin
		}
	}

	cfg := cors.DefaultConfig()
	cfg.AllowOrigins = []string{origin}
	cfg.AllowCredentials = true
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	cfg.MaxAge = 24 * time.Hour
	return cfg
}

func main() {
	// Initialize logger first
	logger.Initialize()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file found, using environment variables", nil)
	}

	// Connect to database
	db.Connect()
	db.AutoMigrate()

	images, err := storage.FromEnv(context.Background())
	if err != nil {
		logger.Fatal("Failed to initialize image storage", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Set Gin mode
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create router without default middleware
	r := gin.New()

	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.Use(middleware.RequestLoggerMiddleware())
	r.Use(cors.New(corsConfig()))
	r.Use(gin.Recovery())

	// Serve locally stored images directly; with the S3 backend clients get
	// absolute URLs instead.
	if os.Getenv("STORAGE_BACKEND") != "s3" {
		dir := os.Getenv("IMAGE_DIR")
		if dir == "" {
			dir = "uploads/images"
		}
		r.Static("/images", dir)
	}

	// Setup routes
	analyzer := routes.SetupRoutes(r, db.DB, images)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		dbStatus := "ok"
		var dbError string
		if db.DB == nil {
			dbStatus = "error"
			dbError = "database connection not initialized"
		} else if sqlDB, err := db.DB.DB(); err != nil {
			dbStatus = "error"
			dbError = err.Error()
		} else if err := sqlDB.Ping(); err != nil {
			dbStatus = "error"
			dbError = err.Error()
		}

		analyzerStatus := "ok"
		var analyzerError string
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if err := analyzer.CheckHealth(ctx); err != nil {
			analyzerStatus = "error"
			analyzerError = err.Error()
		}

		overallStatus := "ok"
		statusCode := http.StatusOK
		if dbStatus != "ok" {
			overallStatus = "error"
			statusCode = http.StatusServiceUnavailable
		}
		// A dead analyzer degrades analysis but the API itself still serves
		// reads, so it does not flip the status code.

		c.JSON(statusCode, gin.H{
			"status":    overallStatus,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"version":   "1.0.0",
			"services": gin.H{
				"database": gin.H{
					"status": dbStatus,
					"error":  dbError,
				},
				"analyzer": gin.H{
					"status": analyzerStatus,
					"error":  analyzerError,
				},
			},
		})
	})

	// Start server with graceful shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: r,
	}

	logger.Info("Starting PlateWise backend server", map[string]interface{}{
		"port":     port,
		"gin_mode": gin.Mode(),
	})

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	<-sigChan
	logger.Info("Shutting down server gracefully...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		logger.Info("Server exited gracefully", nil)
	}
}
