package routes

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/platewise/backend/internal/controllers"
	"github.com/platewise/backend/internal/middleware"
	"github.com/platewise/backend/internal/services"
	"github.com/platewise/backend/internal/storage"
	"gorm.io/gorm"
)

// SetupRoutes configures all application routes. The analyzer client is
// returned so the health endpoint can probe it.
func SetupRoutes(r *gin.Engine, db *gorm.DB, images storage.ImageStore) services.Analyzer {
	analyzer := services.NewAnalyzerClient(
		os.Getenv("ANALYZER_URL"),
		os.Getenv("ANALYZER_MODEL"),
	)

	// Initialize services
	repo := services.NewGormRecordRepository(db)
	recordService := services.NewRecordService(repo)
	orchestrator := services.NewOrchestrator(repo, analyzer, images)
	notifier := services.NewNotifier(repo)

	// Initialize controllers
	authController := controllers.NewAuthController(db)
	recordController := controllers.NewRecordController(recordService, orchestrator, notifier, images)

	// API routes
	api := r.Group("/api/v1")
	{
		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authController.Login)
			auth.POST("/register", authController.Register)
		}

		// Protected routes
		protected := api.Group("/")
		protected.Use(middleware.AuthMiddleware())
		{
			records := protected.Group("/records")
			{
				records.POST("", recordController.UploadRecord)
				records.GET("", recordController.ListRecords)
				records.GET("/:id", recordController.GetRecord)
				records.GET("/:id/iterations", recordController.GetIterations)
				records.PATCH("/:id/metadata", recordController.StageMetadata)
				records.POST("/:id/confirm", recordController.ConfirmRecord)
				records.POST("/:id/reanalyze", recordController.ReanalyzeRecord)
				records.POST("/:id/retry", recordController.RetryRecord)
			}
		}
	}

	return analyzer
}
