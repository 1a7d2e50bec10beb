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

	"github.com/ondrasimku/upload-service-go/internal/config"
	httphandler "github.com/ondrasimku/upload-service-go/internal/http"
	"github.com/ondrasimku/upload-service-go/internal/log"
	"github.com/ondrasimku/upload-service-go/internal/notify"
	"github.com/ondrasimku/upload-service-go/internal/storage"
	"github.com/ondrasimku/upload-service-go/internal/storage/local"
	"github.com/ondrasimku/upload-service-go/internal/storage/s3"
	"github.com/ondrasimku/upload-service-go/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewLogger(cfg.LogLevel, cfg.LogFormat)

	store, err := newStorage(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize storage", "backend", cfg.Storage.Backend, "error", err)
		os.Exit(1)
	}

	signer, err := upload.NewSigner(cfg.Upload.SecretKey)
	if err != nil {
		logger.Error("Failed to initialize signer", "error", err)
		os.Exit(1)
	}

	service := upload.NewService(store, signer, upload.Options{
		PublicBaseURL:          cfg.PublicBaseURL,
		FileTokenBytes:         cfg.Upload.FileTokenBytes,
		OriginalFilenameLength: cfg.Upload.OriginalFilenameLength,
		MagicBufferBytes:       cfg.Upload.MagicBufferBytes,
		AllowedExtensions:      cfg.Upload.AllowedExtensions,
	}, logger)

	webhook := notify.NewDiscordWebhook(cfg.Discord.Webhooks, cfg.Discord.Timeout)
	if !webhook.Enabled() {
		logger.Info("No Discord webhooks configured, notifications disabled")
	}
	dispatcher := notify.NewDispatcher(webhook, cfg.Discord.Timeout, logger)

	if len(cfg.Upload.Passwords) == 0 && cfg.Auth.JWKSUrl == "" {
		logger.Warn("No upload passwords or JWKS URL configured, uploads will be rejected")
	}

	router := httphandler.NewRouter(service, dispatcher, cfg, logger)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.Info("Starting upload service", "addr", cfg.HTTPAddr, "publicUrl", cfg.PublicBaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	dispatcher.Wait()

	logger.Info("Server exited")
}

func newStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendMinio:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s3.NewMinioStorage(ctx, s3.Config{
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			Bucket:    cfg.Storage.Bucket,
			UseSSL:    cfg.Storage.UseSSL,
		}, logger)
	default:
		return local.NewLocalStorage(cfg.Upload.Dir)
	}
}
