package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mdarapour/sse-realtime-demo/internal/config"
	"github.com/mdarapour/sse-realtime-demo/internal/httpapi"
	"github.com/mdarapour/sse-realtime-demo/internal/httpapi/auth"
	"github.com/mdarapour/sse-realtime-demo/internal/outbox"
	"github.com/mdarapour/sse-realtime-demo/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configDir := os.Getenv("SSE_CONFIG_DIR")
	if configDir == "" {
		configDir = "config"
	}
	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error("mongo disconnect failed", "error", err)
		}
	}()

	store := outbox.NewMongoStore(client.Database(cfg.Mongo.Database), cfg.Mongo.OutboxColl, cfg.Mongo.SequenceColl, cfg.Mongo.CheckpointColl)
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Fatalf("failed to ensure indexes: %v", err)
	}

	svc := service.New(store, logger, service.Config{
		PollInterval:      cfg.Service.PollInterval,
		PollBatchSize:     cfg.Service.PollBatchSize,
		PollErrorBackoff:  cfg.Service.PollErrorBackoff,
		HeartbeatInterval: cfg.Service.HeartbeatInterval,
		ShutdownTimeout:   cfg.Service.ShutdownTimeout,
	})

	if err := svc.Start(ctx); err != nil {
		log.Fatalf("failed to start service: %v", err)
	}

	var authN *auth.Authenticator
	if len(cfg.Auth.APIKeyHashes) > 0 {
		authN = auth.New(cfg.Auth.APIKeyHashes)
	}

	handler := httpapi.New(svc, authN, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: handler,
	}

	go func() {
		logger.Info("http server listening", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced to shutdown", "error", err)
	}

	cancel()
	if err := svc.Stop(context.Background()); err != nil {
		logger.Error("service shutdown error", "error", err)
	}

	logger.Info("server exiting")
}
