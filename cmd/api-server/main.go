package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"socialhub/database"
	"socialhub/internal/config"
	"socialhub/internal/logging"
	"socialhub/internal/microservices/http-api/repository"
	"socialhub/internal/microservices/http-api/router"
	"socialhub/internal/microservices/http-api/service"
	"socialhub/internal/microservices/websocket"

	"github.com/gin-gonic/gin"
	gws "github.com/gorilla/websocket"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, closer := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSize,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAge,
	})
	defer closer.Close()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Error("database_connect_failed", "error", err)
		os.Exit(1)
	}
	defer database.Close(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := repository.NewNotificationRepository(db)
	registry := websocket.NewRegistry(logger)

	// local fan-out unless a relay spreads events across instances
	var publisher websocket.Publisher = registry
	if cfg.RedisRelayEnabled {
		client, err := websocket.NewRedisClient(cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			logger.Error("redis_connect_failed", "error", err)
			os.Exit(1)
		}
		defer client.Close()

		relay := websocket.NewRedisRelay(client, registry, logger)
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("redis_relay_stopped", "error", err)
			}
		}()
		publisher = relay
	}

	dispatcher := websocket.NewDispatcher(publisher, repo, logger)
	notifications := service.NewNotificationService(repo, dispatcher)
	verifier := service.NewJWTVerifier(cfg.JWTSecret)

	push := websocket.NewWSHandler(registry, verifier, websocket.ConnOptions{
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
		RateLimit:  cfg.ClientRateLimit,
		RateBurst:  cfg.ClientRateBurst,
	}, cfg.CORSOrigins, logger)

	go websocket.NewHeartbeat(registry, cfg.PingInterval, cfg.PongGrace, logger).Run(ctx)

	engine := router.New(router.Deps{
		Notifications: notifications,
		Verifier:      verifier,
		Push:          push,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting_api_server", "addr", srv.Addr, "redis_relay", cfg.RedisRelayEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("received_shutdown_signal")
	case err := <-errChan:
		logger.Error("server_error", "error", err)
		os.Exit(1)
	}

	// hijacked websocket conns are not tracked by Shutdown
	registry.CloseAll(gws.CloseGoingAway, "server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server_shutdown_failed", "error", err)
		return
	}
	logger.Info("server_stopped_gracefully")
}
