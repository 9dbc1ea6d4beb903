package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gatehub/database"
	"gatehub/internal/config"
	"gatehub/internal/logging"
	ws "gatehub/internal/microservices/websocket"
	"gatehub/internal/server"
)

func main() {
	// Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Setup structured logging
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := map[string]server.HealthCheck{}
	var recorder ws.ProgressRecorder

	switch cfg.ProgressStore {
	case "redis":
		redisOpts, err := cfg.RedisOptions()
		if err != nil {
			logger.Error("redis_config_invalid", "error", err.Error())
			os.Exit(1)
		}
		logger.Info("connecting_redis", "redis_addr", redisOpts.Addr, "redis_db", redisOpts.DB, "tls", redisOpts.TLSConfig != nil)
		repo, err := ws.NewProgressRedisRepo(redisOpts, cfg.ProgressTTL)
		if err != nil {
			logger.Error("redis_unavailable", "error", err.Error())
			os.Exit(1)
		}
		defer repo.Close()
		recorder = repo
		health["redis"] = repo.Ping
	case "postgres":
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("database_unavailable", "error", err.Error())
			os.Exit(1)
		}
		defer pool.Close()
		gdb, err := database.OpenGorm(pool)
		if err != nil {
			logger.Error("gorm_open_failed", "error", err.Error())
			os.Exit(1)
		}
		repo := ws.NewProgressPostgresRepo(gdb)
		if err := repo.Migrate(); err != nil {
			logger.Error("migration_failed", "error", err.Error())
			os.Exit(1)
		}
		recorder = repo
		health["postgres"] = pool.Ping
	}

	opts := []ws.EmitterOption{ws.WithLogger(logger)}
	if recorder != nil {
		opts = append(opts, ws.WithRecorder(recorder))
	}
	emitter := ws.NewEmitter(ws.StepsFromNames(cfg.UpdateSteps, cfg.UpdateInterval), opts...)

	srv := server.New(cfg, server.Deps{
		Emitter:  emitter,
		Recorder: recorder,
		Health:   health,
	})

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		logger.Info("received_shutdown_signal")
		shutdownCtx, stop := context.WithTimeout(ctx, 5*time.Second)
		defer stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown_incomplete", "error", err.Error())
		}
		logger.Info("server_stopped_gracefully")
	case err := <-errChan:
		logger.Error("server_error", "error", err.Error())
		os.Exit(1)
	}
}
