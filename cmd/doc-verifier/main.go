package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doc-verifier/internal/api"
	"doc-verifier/internal/api/handlers"
	"doc-verifier/internal/repository"
	"doc-verifier/internal/service"
	"doc-verifier/pkg/auth"
	"doc-verifier/pkg/config"
	"doc-verifier/pkg/logger"
	"doc-verifier/pkg/postgres"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// @title Document Verifier API
// @version 1.0
// @description Document upload and verification widget backed by DIRO

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the widget token.

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	if err := logger.Init(cfg.Logger.Level); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	appLogger := logger.Get()
	appLogger.Info("Starting document verifier")
	for _, w := range cfg.Warnings() {
		appLogger.Warn("Configuration incomplete", zap.String("detail", w))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Snapshot store
	var store service.SnapshotStore
	switch cfg.Store.Driver {
	case "postgres":
		db, err := postgres.NewPool(ctx, &cfg.Database, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		store = repository.NewSessionRepository(db, appLogger)
	case "memory", "":
		store = repository.NewMemorySessionRepository()
	default:
		appLogger.Fatal("Unknown store driver", zap.String("driver", cfg.Store.Driver))
	}

	// Initialize services
	diroClient := service.NewDiroClient(&cfg.Diro, &http.Client{Timeout: cfg.Diro.Timeout}, appLogger)
	fileService := service.NewFileService(&cfg.Widget, appLogger)
	widgetService := service.NewWidgetService(diroClient, diroClient, fileService, store, service.MachineOptions{
		Scheduler: service.NewRealScheduler(),
		Timings: service.ProgressTimings{
			ProcessingAfter: cfg.Progress.ProcessingAfter,
			ValidatingAfter: cfg.Progress.ValidatingAfter,
			MessageInterval: cfg.Progress.MessageInterval,
		},
		PeriodHint: cfg.Widget.PeriodRange,
	}, cfg.Widget.IdleTTL, appLogger)

	var verifier *auth.TokenVerifier
	if cfg.Auth.WidgetTokenSecret != "" {
		verifier = auth.NewTokenVerifier(cfg.Auth.WidgetTokenSecret)
	}

	// Initialize handlers
	widgetHandler := handlers.NewWidgetHandler(widgetService, appLogger)
	configHandler := handlers.NewConfigHandler(&cfg.Widget)

	// Setup router
	app := api.SetupRouter(widgetHandler, configHandler, verifier, api.RouterOptions{
		BodyLimit:      (cfg.Widget.MaxFileSizeMB + 1) * 1024 * 1024,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestLogging: true,
	}, appLogger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Server.Port
		appLogger.Info("Server starting", zap.String("address", addr))
		if err := app.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		widgetService.RunEviction(gctx, time.Minute)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server")
		if err := app.Shutdown(); err != nil {
			appLogger.Error("Server shutdown error", zap.Error(err))
		}
		widgetService.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
