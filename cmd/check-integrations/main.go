// Command check-integrations verifies every configured external integration
// against its live endpoint: the consultation delivery webhook, the
// transcription provider and the paraclinic analysis webhook. It reads the
// same configuration store as the server, so a passing run here means the
// server's verification gates will open.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/config"
	"github.com/apc939/asistentehc/internal/paraclinic"
	"github.com/apc939/asistentehc/internal/security"
	"github.com/apc939/asistentehc/internal/storage"
	"github.com/apc939/asistentehc/internal/transcribe"
	"github.com/apc939/asistentehc/internal/webhook"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	fileStore, err := storage.NewFileStore(afero.NewOsFs(), cfg.Storage.Dir, logger)
	if err != nil {
		logger.Fatal("Failed to open configuration store", zap.Error(err))
	}

	var store storage.Store = fileStore
	if cfg.Storage.EncryptionKey != "" {
		key, err := security.KeyFromBase64(cfg.Storage.EncryptionKey)
		if err != nil {
			logger.Fatal("Invalid storage encryption key", zap.Error(err))
		}
		encryptor, err := security.NewEncryptor(key)
		if err != nil {
			logger.Fatal("Failed to initialize encryptor", zap.Error(err))
		}
		store, err = storage.NewEncryptedStore(fileStore, encryptor)
		if err != nil {
			logger.Fatal("Failed to initialize encrypted store", zap.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failures := 0

	logger.Info("=== Checking delivery webhook ===")
	if err := checkWebhook(ctx, store, cfg, logger); err != nil {
		logger.Error("Delivery webhook check failed", zap.Error(err))
		failures++
	} else {
		logger.Info("Delivery webhook check passed")
	}

	logger.Info("=== Checking transcription provider ===")
	if err := checkTranscription(ctx, store, cfg, logger); err != nil {
		logger.Error("Transcription provider check failed", zap.Error(err))
		failures++
	} else {
		logger.Info("Transcription provider check passed")
	}

	logger.Info("=== Checking paraclinic webhook ===")
	if err := checkParaclinic(ctx, store, cfg, logger); err != nil {
		logger.Error("Paraclinic webhook check failed", zap.Error(err))
		failures++
	} else {
		logger.Info("Paraclinic webhook check passed")
	}

	if failures > 0 {
		logger.Fatal("Integration checks failed", zap.Int("failures", failures))
	}
	logger.Info("=== All integration checks passed ===")
}

func checkWebhook(ctx context.Context, store storage.Store, cfg *config.Config, logger *zap.Logger) error {
	deliveryLog := webhook.NewDeliveryLog()
	sender, err := webhook.NewSender(store, deliveryLog, cfg.Webhook.AllowedDomains, logger)
	if err != nil {
		return fmt.Errorf("failed to create sender: %w", err)
	}

	if sender.Config().Endpoint == "" {
		logger.Warn("Delivery webhook is not configured, skipping")
		return nil
	}

	return sender.Verify(ctx)
}

func checkTranscription(ctx context.Context, store storage.Store, cfg *config.Config, logger *zap.Logger) error {
	client, err := transcribe.NewClient(store, cfg.Transcription, logger)
	if err != nil {
		return fmt.Errorf("failed to create transcription client: %w", err)
	}

	if client.Config().Credential == "" {
		logger.Warn("Transcription provider is not configured, skipping")
		return nil
	}

	return client.Verify(ctx)
}

func checkParaclinic(ctx context.Context, store storage.Store, cfg *config.Config, logger *zap.Logger) error {
	uploader, err := paraclinic.NewUploader(store, cfg.Paraclinic.MaxImages, cfg.Webhook.AllowedDomains, logger)
	if err != nil {
		return fmt.Errorf("failed to create uploader: %w", err)
	}

	if uploader.Config().Endpoint == "" {
		logger.Warn("Paraclinic webhook is not configured, skipping")
		return nil
	}

	return uploader.Verify(ctx)
}
