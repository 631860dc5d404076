package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/audit"
	"github.com/apc939/asistentehc/internal/capture"
	"github.com/apc939/asistentehc/internal/config"
	"github.com/apc939/asistentehc/internal/encounter"
	"github.com/apc939/asistentehc/internal/handler"
	"github.com/apc939/asistentehc/internal/middleware"
	"github.com/apc939/asistentehc/internal/notes"
	"github.com/apc939/asistentehc/internal/paraclinic"
	"github.com/apc939/asistentehc/internal/security"
	"github.com/apc939/asistentehc/internal/service"
	"github.com/apc939/asistentehc/internal/storage"
	"github.com/apc939/asistentehc/internal/transcribe"
	"github.com/apc939/asistentehc/internal/upload"
	"github.com/apc939/asistentehc/internal/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize Zap logger
	var logger *zap.Logger
	if cfg.Server.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded successfully",
		zap.String("environment", cfg.Server.Environment),
		zap.String("port", cfg.Server.Port),
	)

	// Configuration store. Audio and the delivery log deliberately never
	// touch it.
	fileStore, err := storage.NewFileStore(afero.NewOsFs(), cfg.Storage.Dir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize configuration store", zap.Error(err))
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
		logger.Info("Configuration store encryption enabled")
	}

	// Capture pipeline: a stream device fed by HTTP chunk pushes.
	device := capture.NewStreamDevice("")
	recorder := capture.NewRecorder(device, logger)

	validator, err := upload.NewValidator(
		cfg.Upload.MaxSizeBytes,
		cfg.Upload.MaxDurationSeconds,
		upload.NewMetadataProber(),
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize upload validator", zap.Error(err))
	}

	noteCollector, err := notes.NewCollector(store, logger)
	if err != nil {
		logger.Fatal("Failed to initialize note collector", zap.Error(err))
	}

	deliveryLog := webhook.NewDeliveryLog()
	sender, err := webhook.NewSender(store, deliveryLog, cfg.Webhook.AllowedDomains, logger)
	if err != nil {
		logger.Fatal("Failed to initialize webhook sender", zap.Error(err))
	}

	transcriber, err := transcribe.NewClient(store, cfg.Transcription, logger)
	if err != nil {
		logger.Fatal("Failed to initialize transcription client", zap.Error(err))
	}

	documents, err := paraclinic.NewUploader(store, cfg.Paraclinic.MaxImages, cfg.Webhook.AllowedDomains, logger)
	if err != nil {
		logger.Fatal("Failed to initialize paraclinic uploader", zap.Error(err))
	}

	encounters := encounter.NewManager(logger)

	consultationService, err := service.NewConsultationService(
		recorder,
		validator,
		transcriber,
		sender,
		documents,
		encounters,
		noteCollector,
		cfg.Capture.AutoResetGrace,
		logger,
	)
	if err != nil {
		logger.Fatal("Failed to initialize consultation service", zap.Error(err))
	}

	// Set Gin mode
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Recovery middleware must be first.
	r.Use(middleware.RecoveryMiddleware(logger))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"}, // Configure appropriately for production
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.RequestLoggingMiddleware(logger))
	r.Use(middleware.ErrorLoggingMiddleware(logger))

	auditor := audit.NewLogger(logger)

	handler.RegisterRoutes(r, handler.Handlers{
		Encounter:  handler.NewEncounterHandler(consultationService, logger),
		Recording:  handler.NewRecordingHandler(consultationService, device, logger),
		Audio:      handler.NewAudioHandler(consultationService, logger),
		Delivery:   handler.NewDeliveryHandler(consultationService, deliveryLog, auditor, logger),
		Notes:      handler.NewNotesHandler(noteCollector, logger),
		Settings:   handler.NewSettingsHandler(sender, transcriber, documents, auditor, logger),
		Paraclinic: handler.NewParaclinicHandler(consultationService, auditor, logger),
		Health:     handler.NewHealthHandler(),
	})

	// Start server with graceful shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("Starting server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
