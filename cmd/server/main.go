package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tirumala-karthikeya/chat-pro/internal/grpcserver"
	"github.com/tirumala-karthikeya/chat-pro/pkg/config"
	"github.com/tirumala-karthikeya/chat-pro/pkg/di"
	"github.com/tirumala-karthikeya/chat-pro/pkg/logger"
	"github.com/tirumala-karthikeya/chat-pro/pkg/router"
	"github.com/tirumala-karthikeya/chat-pro/shared/observability"
)

func main() {
	cfg := config.New()

	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"
	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("Starting application", "env", cfg.Server.Env, "storage_backend", cfg.Storage.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.TracingEnabled {
		shutdownTracing, err := observability.SetupTracing(cfg.Observability.ServiceName)
		if err != nil {
			log.LogError(err, "Failed to set up tracing")
			os.Exit(1)
		}
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	container, err := di.New(appCtx, cfg, log)
	if err != nil {
		log.LogError(err, "Failed to initialize dependency container")
		os.Exit(1)
	}
	container.Health.Start(appCtx, 30*time.Second)

	r := router.New(container)
	r.SetupRoutes(appCtx)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogError(err, "Server failed to start")
			os.Exit(1)
		}
	}()

	var grpcSrv *grpcserver.Server
	if cfg.Observability.GRPCPort != "" {
		grpcSrv = grpcserver.New(log)
		container.Health.OnChange(grpcSrv.SetServing)
		go func() {
			if err := grpcSrv.ListenAndServe(cfg.Observability.GRPCPort); err != nil {
				log.LogError(err, "gRPC server failed")
			}
		}()
	}

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.LogError(err, "Server forced to shutdown")
	}
	if grpcSrv != nil {
		grpcSrv.Stop(shutdownCtx)
	}
	cancelApp()
	if err := container.Close(shutdownCtx); err != nil {
		log.LogError(err, "Failed to release resources")
	}

	log.Info("Server exited gracefully")
}
