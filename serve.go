package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"fitremind/internal/api"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server with foreground scheduling",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer h.close()

	if err := h.engine.Start(ctx); err != nil {
		return err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          api.ErrorHandler,
		DisableStartupMessage: true,
	})

	// Middleware
	app.Use(logger.New())

	if cfg.UsesDefaultOrigins() {
		log.Warn("using default ALLOWED_ORIGINS, set ALLOWED_ORIGINS for production")
	}
	log.Info("CORS configured", "origins", cfg.AllowedOrigins)

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	var publicKey string
	if cfg.VAPIDConfigured() {
		publicKey = cfg.VAPIDPublicKey
	}
	api.SetupRoutes(app, api.Deps{
		Engine:         h.engine,
		Subscriptions:  h.subs,
		Completions:    h.completions,
		VAPIDPublicKey: publicKey,
		WakeLimiter:    rate.NewLimiter(rate.Limit(cfg.WakeRate), cfg.WakeBurst),
	})

	errc := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port)
		errc <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err = <-errc:
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err = app.ShutdownWithContext(shutdownCtx)
	}

	h.engine.Stop(context.Background())
	return err
}
