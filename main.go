package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Hussein135-coder/souriana-extract-bot/bot"
	"github.com/Hussein135-coder/souriana-extract-bot/config"
	"github.com/Hussein135-coder/souriana-extract-bot/handler"
	"github.com/Hussein135-coder/souriana-extract-bot/middleware"
	"github.com/Hussein135-coder/souriana-extract-bot/pkg/logger"
	"github.com/Hussein135-coder/souriana-extract-bot/service"
)

func main() {
	cfg, err := config.Load("config.yaml")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Init(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	slog.Info("configuration loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize services
	visionSvc, err := service.NewVisionService(ctx, &cfg.Gemini, cfg.Defaults)
	if err != nil {
		slog.Error("failed to initialize vision service", "error", err)
		os.Exit(1)
	}

	websiteSvc := service.NewWebsiteService(&cfg.Website)

	backupSvc, err := service.NewBackupService(&cfg.Backup)
	if err != nil {
		slog.Error("failed to initialize backup service", "error", err)
		os.Exit(1)
	}
	if err := backupSvc.EnsureMirrorBucket(ctx); err != nil {
		slog.Warn("backup mirror unavailable", "error", err)
	}

	store := service.NewConversationStore()

	// A failing key downgrades extraction to default values; keep running.
	geminiOK := true
	if err := visionSvc.CheckAPIKey(ctx); err != nil {
		slog.Warn("gemini api key check failed, extraction will fall back to defaults", "error", err)
		geminiOK = false
	}

	// The bot is the main surface; failing to construct it is fatal.
	b, err := bot.New(cfg, visionSvc, websiteSvc, backupSvc, store)
	if err != nil {
		slog.Error("failed to initialize telegram bot", "error", err)
		os.Exit(1)
	}

	// Eager first login so /status is meaningful from the start. Failure is
	// recoverable: submission offers a manual retry.
	websiteOK := true
	if _, err := websiteSvc.Login(ctx, true); err != nil {
		slog.Warn("initial website login failed, submission will require manual retry", "error", err)
		websiteOK = false
	}

	go b.Run(ctx)
	b.SendStartupNotice(ctx, geminiOK, websiteOK)

	// Setup Gin router for the health endpoint
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler(websiteSvc, store)
	router.GET("/", healthHandler.Root)
	router.GET("/health", healthHandler.Health)
	router.GET("/status", healthHandler.Status)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
