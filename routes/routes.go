package routes

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"facc/cache"
	"facc/config"
	"facc/controllers"
	"facc/middleware"
)

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, ctl *controllers.Controller, cfg *config.Config, responses *cache.Cache, limiter *middleware.RateLimiter) {
	r.Use(middleware.RequestIDMiddleware())

	// CORS settings
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
	}))

	r.GET("/health", ctl.Health)

	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(limiter))

	// Public routes (no authentication required)
	api.POST("/auth/login", ctl.Login)

	// Protected routes (authentication required)
	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	{
		protected.POST("/auth/logout", ctl.Logout)
		protected.GET("/auth/me", ctl.Me)

		protected.GET("/profile", ctl.GetProfile)
		protected.PUT("/profile", ctl.UpdateProfile)

		cached := middleware.CacheMiddleware(responses)

		// Company settings
		protected.GET("/settings", cached, ctl.GetSettings)
		protected.PUT("/settings", middleware.AdminAuthMiddleware(), ctl.UpdateSettings)

		// Catalogs
		importGroup := protected.Group("/import")
		importGroup.Use(middleware.AdminAuthMiddleware())
		for _, cat := range controllers.Catalogs {
			protected.GET("/"+cat.Path, cached, ctl.ListCatalog(cat))
			importGroup.POST("/"+cat.Path, ctl.ImportCatalog(cat))
		}

		// Requisitions
		requisitions := protected.Group("/requisitions")
		{
			requisitions.GET("", ctl.ListRequisitions)
			requisitions.GET("/last-number", ctl.LastRequisitionNumber)
			requisitions.GET("/:id", ctl.GetRequisition)
			requisitions.POST("", middleware.ProcessAuthMiddleware(), ctl.CreateRequisition)
			requisitions.PUT("/:id", middleware.ProcessAuthMiddleware(), ctl.UpdateRequisition)
			requisitions.POST("/:id/submit", middleware.ProcessAuthMiddleware(), ctl.SubmitRequisition)
			requisitions.POST("/:id/signed", middleware.ProcessAuthMiddleware(), ctl.UploadSignedRequisition)
			requisitions.PUT("/:id/status", middleware.ApproverAuthMiddleware(), ctl.UpdateRequisitionStatus)
			requisitions.DELETE("/:id", middleware.AdminAuthMiddleware(), ctl.DeleteRequisition)
		}

		// Payment requests
		payments := protected.Group("/payment-requests")
		{
			payments.GET("", ctl.ListPaymentRequests)
			payments.GET("/:id", ctl.GetPaymentRequest)
			payments.POST("", middleware.ProcessAuthMiddleware(), ctl.CreatePaymentRequest)
			payments.PUT("/:id/status", middleware.ApproverAuthMiddleware(), ctl.UpdatePaymentRequestStatus)
			payments.DELETE("/:id", middleware.AdminAuthMiddleware(), ctl.DeletePaymentRequest)
		}

		// Records (actas)
		records := protected.Group("/records")
		{
			records.GET("", ctl.ListRecords)
			records.GET("/:id", ctl.GetRecord)
			records.POST("", middleware.ProcessAuthMiddleware(), ctl.CreateRecord)
			records.DELETE("/:id", middleware.AdminAuthMiddleware(), ctl.DeleteRecord)
		}

		protected.GET("/reports", ctl.GetReports)

		// Notifications
		protected.GET("/notifications", ctl.ListNotifications)
		protected.PUT("/notifications/:id/read", ctl.MarkNotificationRead)

		// Admin routes
		admin := protected.Group("")
		admin.Use(middleware.AdminAuthMiddleware())
		{
			admin.GET("/users", ctl.ListUsers)
			admin.POST("/users", ctl.CreateUser)
			admin.PUT("/users/:id", ctl.UpdateUser)
			admin.DELETE("/users/:id", ctl.DeleteUser)

			admin.GET("/admin/dashboard", ctl.AdminDashboard)
			admin.GET("/audit-logs", ctl.GetAuditLogs)

			admin.POST("/backups", ctl.CreateBackup)
			admin.GET("/backups", ctl.ListBackups)
			admin.POST("/backups/:filename/restore", ctl.RestoreBackup)
			admin.DELETE("/backups/:filename", ctl.DeleteBackup)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Ruta no encontrada"})
	})
}
