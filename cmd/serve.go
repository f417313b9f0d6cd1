package cmd

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"facc/cache"
	"facc/controllers"
	"facc/database"
	"facc/middleware"
	"facc/routes"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	responses := cache.New(cfg.CacheTTL)
	a, err := openApp(ctx, cfg, responses.Clear)
	if err != nil {
		return err
	}
	defer a.store.Close()

	if err := database.SeedDefaultAdmin(ctx, a.store, a.cfg.AdminEmail, a.cfg.AdminPassword); err != nil {
		return err
	}

	if !a.cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup router
	r := gin.Default()
	ctl := controllers.New(a.cfg, a.store, a.recorder, a.backups)
	limiter := middleware.NewRateLimiter(a.cfg.RateLimit, a.cfg.RateWindow)
	routes.SetupRoutes(r, ctl, a.cfg, responses, limiter)

	// Start server
	log.Printf("🚀 Server running at http://0.0.0.0:%s (store: %s)", a.cfg.Port, a.store.Driver())
	return r.Run("0.0.0.0:" + a.cfg.Port)
}
