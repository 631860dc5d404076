package paraclinic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/storage"
	"github.com/apc939/asistentehc/internal/webhook"
	"github.com/apc939/asistentehc/pkg/model"
)

const configKey = "paraclinic-webhook-config"

// documentType tags every uploaded batch.
const documentType = "paraclinic_document"

var (
	// ErrNoImages is returned for an empty upload.
	ErrNoImages = errors.New("paraclinic: at least one image is required")

	// ErrTooManyImages is returned when the batch exceeds the limit.
	ErrTooManyImages = errors.New("paraclinic: too many images")

	// ErrUnsupportedImage is returned for a file that is not an accepted
	// image format.
	ErrUnsupportedImage = errors.New("paraclinic: unsupported image format")

	// ErrNotConfigured is returned when no analysis endpoint is set.
	ErrNotConfigured = errors.New("paraclinic: no endpoint configured")

	// ErrNotEnabled is returned while the integration is switched off.
	ErrNotEnabled = errors.New("paraclinic: integration is not enabled")

	// ErrNotVerified is returned when enabling an unverified endpoint.
	ErrNotVerified = errors.New("paraclinic: endpoint has not been verified")
)

// UploadFailedError reports an analysis endpoint that answered outside the
// 2xx range.
type UploadFailedError struct {
	StatusCode int
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("paraclinic: endpoint answered %d", e.StatusCode)
}

var acceptedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".heic": true,
	".webp": true,
}

var acceptedImageMimes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/heic": true,
	"image/webp": true,
}

// Image is one paraclinic document page or photo.
type Image struct {
	Filename string
	Data     []byte
}

// Metadata travels alongside the images so the analysis endpoint can link
// the result back to the consultation.
type Metadata struct {
	EncounterID       string `json:"encounter_id,omitempty"`
	PatientAlias      string `json:"patient_alias,omitempty"`
	PatientInternalID string `json:"patient_internal_id,omitempty"`
}

// Uploader posts paraclinic document images to the configured analysis
// webhook and parses whatever summary shape the endpoint answers with.
type Uploader struct {
	store          storage.Store
	httpClient     *http.Client
	maxImages      int
	allowedDomains []string
	logger         *zap.Logger

	mu  sync.Mutex
	cfg model.IntegrationConfig
}

// NewUploader loads the persisted paraclinic webhook configuration, if any.
func NewUploader(store storage.Store, maxImages int, allowedDomains []string, logger *zap.Logger) (*Uploader, error) {
	if maxImages <= 0 {
		return nil, fmt.Errorf("paraclinic image limit must be positive")
	}

	u := &Uploader{
		store:          store,
		httpClient:     &http.Client{Timeout: 2 * time.Minute},
		maxImages:      maxImages,
		allowedDomains: allowedDomains,
		logger:         logger,
	}

	var cfg model.IntegrationConfig
	if err := store.Load(configKey, &cfg); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load paraclinic config: %w", err)
		}
	} else {
		u.cfg = cfg
	}

	return u, nil
}

// Config returns the current configuration.
func (u *Uploader) Config() model.IntegrationConfig {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cfg
}

// Configure sets the analysis endpoint. The URL safety policy applies the
// same way it does to the delivery webhook.
func (u *Uploader) Configure(endpoint string) error {
	if endpoint == "" {
		return ErrNotConfigured
	}
	if err := webhook.CheckDestination(endpoint, u.allowedDomains); err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if endpoint != u.cfg.Endpoint {
		u.cfg.IsVerified = false
		u.cfg.Enabled = false
		u.cfg.LastTestedAt = nil
	}
	u.cfg.Endpoint = endpoint
	return u.persistLocked()
}

// SetEnabled turns the integration on or off. Enabling requires a verified
// endpoint.
func (u *Uploader) SetEnabled(enabled bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if enabled && !u.cfg.IsVerified {
		return ErrNotVerified
	}
	u.cfg.Enabled = enabled
	return u.persistLocked()
}

// ClearConfig removes the paraclinic webhook configuration.
func (u *Uploader) ClearConfig() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.cfg = model.IntegrationConfig{}
	if err := u.store.Delete(configKey); err != nil {
		return fmt.Errorf("failed to clear paraclinic config: %w", err)
	}
	return nil
}

// Verify posts a small test document to the endpoint. A 2xx answer marks it
// verified.
func (u *Uploader) Verify(ctx context.Context) error {
	u.mu.Lock()
	endpoint := u.cfg.Endpoint
	u.mu.Unlock()

	if endpoint == "" {
		return ErrNotConfigured
	}
	if err := webhook.CheckDestination(endpoint, u.allowedDomains); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"test":      true,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode test payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := u.httpClient.Do(req)
	if err != nil {
		u.withdrawVerification()
		return fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u.withdrawVerification()
		return &UploadFailedError{StatusCode: resp.StatusCode}
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	now := time.Now()
	firstVerification := !u.cfg.IsVerified
	u.cfg.IsVerified = true
	u.cfg.LastTestedAt = &now
	if firstVerification {
		u.cfg.Enabled = true
	}
	if err := u.persistLocked(); err != nil {
		return err
	}

	u.logger.Info("paraclinic endpoint verified", zap.Bool("enabled", u.cfg.Enabled))
	return nil
}

// withdrawVerification clears the verified state after a failed test. An
// endpoint that stops answering must pass a new test before deliveries
// resume.
func (u *Uploader) withdrawVerification() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cfg.IsVerified = false
	u.cfg.Enabled = false
	if err := u.persistLocked(); err != nil {
		u.logger.Error("failed to persist paraclinic config", zap.Error(err))
	}
}

// Upload validates the batch, posts it as multipart form data and parses the
// endpoint's summary. Validation and configuration gates run before any
// network activity.
func (u *Uploader) Upload(ctx context.Context, images []Image, meta Metadata) (*model.ParaclinicAnalysisResult, error) {
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	if len(images) > u.maxImages {
		return nil, fmt.Errorf("%w: %d images (max %d)", ErrTooManyImages, len(images), u.maxImages)
	}
	for _, img := range images {
		if !imageAccepted(img) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, img.Filename)
		}
	}

	u.mu.Lock()
	cfg := u.cfg
	u.mu.Unlock()

	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	if err := webhook.CheckDestination(cfg.Endpoint, u.allowedDomains); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, ErrNotEnabled
	}

	body, contentType, err := buildMultipart(images, meta)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.Endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("paraclinic upload failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		u.logger.Error("paraclinic upload rejected",
			zap.Int("status", resp.StatusCode),
			zap.Int("images", len(images)),
		)
		return nil, &UploadFailedError{StatusCode: resp.StatusCode}
	}

	summary := parseSummary(respBody)
	u.logger.Info("paraclinic documents analyzed",
		zap.Int("images", len(images)),
		zap.String("encounter_id", meta.EncounterID),
	)

	return &model.ParaclinicAnalysisResult{
		ID:      uuid.New().String(),
		Summary: summary,
	}, nil
}

func imageAccepted(img Image) bool {
	if acceptedImageExtensions[strings.ToLower(filepath.Ext(img.Filename))] {
		return true
	}
	return acceptedImageMimes[mimetype.Detect(img.Data).String()]
}

// buildMultipart assembles the upload form: one part per image plus the
// timestamp, document type and metadata fields.
func buildMultipart(images []Image, meta Metadata) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, img := range images {
		part, err := w.CreateFormFile("images", img.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to build form: %w", err)
		}
		if _, err := part.Write(img.Data); err != nil {
			return nil, "", fmt.Errorf("failed to write image: %w", err)
		}
	}

	if err := w.WriteField("timestamp", time.Now().Format(time.RFC3339)); err != nil {
		return nil, "", fmt.Errorf("failed to write form field: %w", err)
	}
	if err := w.WriteField("type", documentType); err != nil {
		return nil, "", fmt.Errorf("failed to write form field: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := w.WriteField("metadata", string(metaJSON)); err != nil {
		return nil, "", fmt.Errorf("failed to write form field: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finish form: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

func (u *Uploader) persistLocked() error {
	if err := u.store.Save(configKey, u.cfg); err != nil {
		return fmt.Errorf("failed to persist paraclinic config: %w", err)
	}
	return nil
}
