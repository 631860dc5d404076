package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/apc939/asistentehc/internal/storage"
	"github.com/apc939/asistentehc/pkg/model"
)

const configKey = "webhook-config"

var (
	// ErrNotConfigured is returned when no webhook endpoint is set.
	ErrNotConfigured = errors.New("webhook: no endpoint configured")

	// ErrNotEnabled is returned for automatic deliveries while the
	// integration is disabled. Manual sends bypass this gate.
	ErrNotEnabled = errors.New("webhook: integration is not enabled")

	// ErrNotVerified is returned when enabling an integration whose
	// endpoint has not passed a verification test.
	ErrNotVerified = errors.New("webhook: endpoint has not been verified")
)

// DeliveryFailedError reports a webhook endpoint that answered outside the
// 2xx range.
type DeliveryFailedError struct {
	StatusCode int
}

func (e *DeliveryFailedError) Error() string {
	return fmt.Sprintf("webhook: endpoint answered %d", e.StatusCode)
}

// consultationType tags every delivered payload.
const consultationType = "medical_consultation"

// Payload is the consultation document posted to the configured webhook.
// Transcript carries the redacted text; AudioData carries base64 audio for
// endpoints still consuming the pre-transcription format.
type Payload struct {
	Transcript      string               `json:"transcript,omitempty"`
	AudioData       string               `json:"audioData,omitempty"`
	DurationSeconds float64              `json:"duration"`
	Timestamp       time.Time            `json:"timestamp"`
	Type            string               `json:"type"`
	EncounterID     string               `json:"encounter_id"`
	CaptureMethod   model.CaptureMethod  `json:"capture_method"`
	Notes           []model.NoteSnapshot `json:"notes,omitempty"`
}

// Sender owns the delivery webhook configuration and performs deliveries
// against it. The configuration persists across restarts; the delivery log
// does not.
type Sender struct {
	store          storage.Store
	log            *DeliveryLog
	httpClient     *http.Client
	allowedDomains []string
	logger         *zap.Logger

	mu  sync.Mutex
	cfg model.IntegrationConfig
}

// NewSender loads the persisted webhook configuration, if any.
func NewSender(store storage.Store, log *DeliveryLog, allowedDomains []string, logger *zap.Logger) (*Sender, error) {
	s := &Sender{
		store:          store,
		log:            log,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		allowedDomains: allowedDomains,
		logger:         logger,
	}

	var cfg model.IntegrationConfig
	if err := store.Load(configKey, &cfg); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load webhook config: %w", err)
		}
	} else {
		s.cfg = cfg
	}

	return s, nil
}

// Config returns the current configuration.
func (s *Sender) Config() model.IntegrationConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Configure sets the endpoint URL. The URL must pass the safety policy.
// Changing the endpoint invalidates any previous verification, so the
// integration is disabled until verified again.
func (s *Sender) Configure(endpoint string) error {
	if endpoint == "" {
		return ErrNotConfigured
	}
	if err := CheckDestination(endpoint, s.allowedDomains); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if endpoint != s.cfg.Endpoint {
		s.cfg.IsVerified = false
		s.cfg.Enabled = false
		s.cfg.LastTestedAt = nil
	}
	s.cfg.Endpoint = endpoint
	return s.persistLocked()
}

// SetEnabled turns automatic delivery on or off. Enabling requires a
// verified endpoint.
func (s *Sender) SetEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enabled && !s.cfg.IsVerified {
		return ErrNotVerified
	}
	s.cfg.Enabled = enabled
	return s.persistLocked()
}

// ClearConfig removes the webhook configuration entirely.
func (s *Sender) ClearConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = model.IntegrationConfig{}
	if err := s.store.Delete(configKey); err != nil {
		return fmt.Errorf("failed to clear webhook config: %w", err)
	}
	return nil
}

// Verify posts a small test document to the configured endpoint. A 2xx
// answer marks the endpoint verified; verification is the precondition for
// enabling automatic delivery.
func (s *Sender) Verify(ctx context.Context) error {
	s.mu.Lock()
	endpoint := s.cfg.Endpoint
	s.mu.Unlock()

	if endpoint == "" {
		return ErrNotConfigured
	}
	if err := CheckDestination(endpoint, s.allowedDomains); err != nil {
		return err
	}

	body, err := json.Marshal(map[string]any{
		"test":      true,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to encode test payload: %w", err)
	}

	if err := s.post(ctx, endpoint, body); err != nil {
		// A failed test withdraws any earlier verification: stale trust in
		// an endpoint that stopped answering must not keep delivery open.
		s.mu.Lock()
		s.cfg.IsVerified = false
		s.cfg.Enabled = false
		if persistErr := s.persistLocked(); persistErr != nil {
			s.logger.Error("failed to persist webhook config", zap.Error(persistErr))
		}
		s.mu.Unlock()

		s.logger.Warn("webhook verification failed", zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	firstVerification := !s.cfg.IsVerified
	s.cfg.IsVerified = true
	s.cfg.LastTestedAt = &now
	if firstVerification {
		s.cfg.Enabled = true
	}
	if err := s.persistLocked(); err != nil {
		return err
	}

	s.logger.Info("webhook endpoint verified", zap.Bool("enabled", s.cfg.Enabled))
	return nil
}

// Deliver posts the consultation payload. Automatic deliveries require the
// integration to be enabled; manual deliveries only require a configured,
// safe endpoint. Every attempt is recorded in the delivery log.
func (s *Sender) Deliver(ctx context.Context, payload Payload, manual bool) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	if cfg.Endpoint == "" {
		return ErrNotConfigured
	}
	if err := CheckDestination(cfg.Endpoint, s.allowedDomains); err != nil {
		return err
	}
	if !manual && !cfg.Enabled {
		return ErrNotEnabled
	}

	payload.Type = consultationType
	if payload.Timestamp.IsZero() {
		payload.Timestamp = time.Now()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	// The log records how long the attempt itself took; the audio duration
	// travels inside the payload.
	start := time.Now()
	if err := s.post(ctx, cfg.Endpoint, body); err != nil {
		s.log.Record(model.DeliveryStatusError, time.Since(start).Seconds(), err.Error())
		s.logger.Error("webhook delivery failed",
			zap.String("encounter_id", payload.EncounterID),
			zap.Error(err),
		)
		return err
	}

	s.log.Record(model.DeliveryStatusSuccess, time.Since(start).Seconds(), "delivered")
	s.logger.Info("consultation delivered",
		zap.String("encounter_id", payload.EncounterID),
		zap.String("capture_method", string(payload.CaptureMethod)),
		zap.Int("notes", len(payload.Notes)),
	)
	return nil
}

func (s *Sender) post(ctx context.Context, endpoint string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryFailedError{StatusCode: resp.StatusCode}
	}
	return nil
}

func (s *Sender) persistLocked() error {
	if err := s.store.Save(configKey, s.cfg); err != nil {
		return fmt.Errorf("failed to persist webhook config: %w", err)
	}
	return nil
}
