package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"adchat/internal/api"
	"adchat/internal/config"
	"adchat/internal/kv"
	"adchat/internal/mail"
	"adchat/internal/relay"
	"adchat/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg.Debug)
	defer logger.Sync()

	kvStore, err := kv.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to initialize key-value store", zap.Error(err))
	}
	defer kvStore.Close()

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := kvStore.Ping(pingCtx); err != nil {
		cancel()
		logger.Fatal("Failed to reach key-value store", zap.Error(err))
	}
	cancel()

	sessions := store.NewSessionStore(kvStore)
	chats := store.NewChatStore(kvStore)
	profiles := store.NewProfileStore(kvStore)

	completions := relay.NewCompletionRelay(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	ads := relay.NewAdRelay(cfg.ThradAPIKey, cfg.ThradAPIKeyFallback, "", logger)
	mailer := mail.NewSender(cfg.BrevoAPIKey, cfg.EmailFromAddress, "")

	apiHandler := api.NewAPIHandler(sessions, chats, profiles, completions, ads, mailer, logger)
	router := api.NewRouter(apiHandler, cfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // completion streams can take a while
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited gracefully")
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return logger
}
