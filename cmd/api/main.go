package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jjtheshooterr/autobot/cmd/mainconfig"
	"github.com/jjtheshooterr/autobot/internal/api/router"
	"github.com/jjtheshooterr/autobot/internal/app/bootstrap"
	appconfig "github.com/jjtheshooterr/autobot/internal/config"
	"github.com/jjtheshooterr/autobot/internal/http/handlers"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

func main() {
	// .env is optional, local development only.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting autobot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	pool, err := bootstrap.BuildPGPool(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)

	conv, err := bootstrap.BuildConversation(ctx, cfg, awsCfg, pool, redisClient, logger)
	if err != nil {
		logger.Error("failed to build booking pipeline", "error", err)
		os.Exit(1)
	}

	// Initialize handlers
	webhookHandler := handlers.NewMessengerWebhookHandler(handlers.MessengerWebhookConfig{
		AppSecret:   cfg.MessengerAppSecret,
		VerifyToken: cfg.MessengerVerifyToken,
		Publisher:   conv.Publisher,
		Dedupe:      conv.Dedupe,
		Leads:       conv.Leads,
		Logger:      logger,
		Metrics:     conv.Messaging,
	})
	adminHandler := handlers.NewAdminLeadsHandler(conv.Leads, logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		MessengerWebhooks:  webhookHandler,
		AdminLeads:         adminHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(conv.Registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: splitOrigins(cfg.CORSAllowedOrigins),
	}
	r := router.New(routerCfg)

	// On the in-memory queue the API drains its own inbound messages.
	if cfg.UseMemoryQueue {
		conv.Worker.Start(ctx)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	if cfg.UseMemoryQueue {
		cancel()
		conv.Worker.Wait()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
