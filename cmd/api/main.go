package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/kurswerk/backend/internal/config"
	"github.com/kurswerk/backend/internal/handlers"
	"github.com/kurswerk/backend/internal/middleware"
	"github.com/kurswerk/backend/internal/models"
	"github.com/kurswerk/backend/internal/services"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.New()

	// Initialize database
	db, err := models.InitDB(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Run migrations
	if err := models.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize Redis
	redisClient := models.InitRedis(cfg)
	defer redisClient.Close()

	// Initialize services
	authService := services.NewAuthService(db, redisClient, cfg)
	adminService := services.NewAdminService(db, cfg)
	s3Service, err := services.NewS3Service(cfg)
	if err != nil {
		log.Fatalf("Failed to init S3 service: %v", err)
	}
	videoService := services.NewVideoService(db, cfg)
	queryService := services.NewQueryService(db)
	reconcileService := services.NewReconcileService(db, s3Service)
	exportService := services.NewExportService(db, cfg)
	qrService := services.NewQRService(cfg)
	auditService := services.NewAuditService(db)

	// Create admin user if not exists
	if err := adminService.CreateDefaultAdmin(); err != nil {
		log.Printf("Failed to create default admin: %v", err)
	}

	// Optional: reconcile the video bucket against the catalog on start
	if cfg.ReconcileOnStart {
		go func() {
			log.Printf("ReconcileOnStart enabled: listing %q...", cfg.VideoKeyPrefix)
			result, err := reconcileService.FindUnimported(context.Background(), cfg.VideoKeyPrefix)
			if err != nil {
				log.Printf("Reconcile list error: %v", err)
				return
			}
			log.Printf("Reconcile: %d cataloged, %d importable", len(result.Cataloged), len(result.Importable))

			if !cfg.ReconcileAutoImport {
				return
			}
			// Best-effort batch: each blob imports independently, failures
			// are logged and the batch continues.
			imported := 0
			for _, blob := range result.Importable {
				title := strings.TrimSuffix(path.Base(blob.Key), path.Ext(blob.Key))
				_, existing, err := videoService.Import(&services.ImportRequest{
					Key:      blob.Key,
					URL:      s3Service.VideoURL(blob.Key),
					Size:     blob.Size,
					MimeType: blob.MimeType,
					Title:    title,
				}, nil)
				if err != nil {
					log.Printf("Reconcile import error for %s: %v", blob.Key, err)
					continue
				}
				if !existing {
					imported++
				}
			}
			log.Printf("Reconcile: imported %d new videos", imported)
		}()
	}

	// Cleanup expired refresh tokens periodically
	go func() {
		for {
			if err := authService.CleanupExpiredTokens(); err != nil {
				log.Printf("Token cleanup error: %v", err)
			}
			time.Sleep(1 * time.Hour)
		}
	}()

	// Setup Gin router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.RateLimiter(redisClient, cfg))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authService)
	videoHandler := handlers.NewVideoHandler(videoService, queryService, reconcileService, exportService, qrService, auditService)
	adminHandler := handlers.NewAdminHandler(auditService)

	// Health check outside API group
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	// Setup routes
	api := router.Group("/api/v1")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		// Catch-all OPTIONS handler for CORS preflight requests
		api.OPTIONS("/*path", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		// Auth routes
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.RefreshToken)
			auth.POST("/logout", middleware.Auth(authService), authHandler.Logout)
		}

		// Admin catalog routes; every mutating operation requires the
		// admin capability
		admin := api.Group("/admin")
		admin.Use(middleware.Auth(authService))
		admin.Use(middleware.AdminOnly())
		{
			// Specific routes BEFORE generic :id route to avoid conflicts
			admin.GET("/videos", videoHandler.SearchVideos)
			admin.POST("/videos/import", videoHandler.ImportVideo)
			admin.POST("/videos/bulk-delete", videoHandler.BulkDelete)
			admin.GET("/videos/reconcile", videoHandler.Reconcile)
			admin.GET("/videos/export.csv", videoHandler.ExportCSV)
			admin.GET("/videos/export.pdf", videoHandler.ExportPDF)

			admin.GET("/videos/:id", videoHandler.GetVideo)
			admin.POST("/videos/:id/usage", videoHandler.AddUsage)
			admin.PUT("/videos/:id/metadata", videoHandler.UpdateMetadata)
			admin.GET("/videos/:id/qr.png", videoHandler.GetVideoQR)

			admin.GET("/audit", adminHandler.GetAuditLog)
		}
	}

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
