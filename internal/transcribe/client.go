package transcribe

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

	"github.com/apc939/asistentehc/internal/config"
	"github.com/apc939/asistentehc/internal/storage"
	"github.com/apc939/asistentehc/pkg/model"
)

const configKey = "transcription-config"

var (
	// ErrNotConfigured is returned when no API key is set.
	ErrNotConfigured = errors.New("transcribe: no API key configured")

	// ErrNotVerified is returned when the key has not passed a
	// verification test.
	ErrNotVerified = errors.New("transcribe: API key has not been verified")

	// ErrNotEnabled is returned while the integration is switched off.
	ErrNotEnabled = errors.New("transcribe: transcription is not enabled")
)

// FailedError reports a transcription the provider accepted but could not
// complete. The Message comes from the provider.
type FailedError struct {
	Message string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("transcribe: transcription failed: %s", e.Message)
}

// redactionPolicies is the fixed personally-identifying-information set
// removed from every transcript before it leaves the provider.
var redactionPolicies = []string{
	"person_name",
	"organization",
	"occupation",
	"number_sequence",
	"drivers_license",
	"passport_number",
}

// Client transcribes consultation audio through the speech-to-text
// provider's REST API. Audio is uploaded, a transcription job is created
// with Spanish language and PII redaction fixed on, and the job is polled
// until it completes.
type Client struct {
	store        storage.Store
	httpClient   *http.Client
	baseURL      string
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *zap.Logger

	mu  sync.Mutex
	cfg model.IntegrationConfig
}

// NewClient loads the persisted transcription configuration. A key supplied
// through the environment seeds the credential but still requires
// verification before use.
func NewClient(store storage.Store, cfg config.TranscriptionConfig, logger *zap.Logger) (*Client, error) {
	c := &Client{
		store:        store,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		baseURL:      cfg.BaseURL,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		logger:       logger,
	}

	var persisted model.IntegrationConfig
	if err := store.Load(configKey, &persisted); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("failed to load transcription config: %w", err)
		}
	} else {
		c.cfg = persisted
	}

	if c.cfg.Credential == "" && cfg.APIKey != "" {
		c.cfg.Credential = cfg.APIKey
		if err := c.persistLocked(); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Config returns the current configuration with the credential masked.
func (c *Client) Config() model.IntegrationConfig {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.cfg
	if out.Credential != "" {
		out.Credential = maskCredential(out.Credential)
	}
	return out
}

func maskCredential(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// SetCredential replaces the API key. Any previous verification no longer
// applies, so the integration is disabled until verified again.
func (c *Client) SetCredential(key string) error {
	if key == "" {
		return ErrNotConfigured
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.Credential = key
	c.cfg.IsVerified = false
	c.cfg.Enabled = false
	c.cfg.LastTestedAt = nil
	return c.persistLocked()
}

// SetEnabled turns transcription on or off. Enabling requires a verified key.
func (c *Client) SetEnabled(enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if enabled && !c.cfg.IsVerified {
		return ErrNotVerified
	}
	c.cfg.Enabled = enabled
	return c.persistLocked()
}

// ClearConfig removes the stored credential and resets all gates.
func (c *Client) ClearConfig() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg = model.IntegrationConfig{}
	if err := c.store.Delete(configKey); err != nil {
		return fmt.Errorf("failed to clear transcription config: %w", err)
	}
	return nil
}

// Verify checks the key against the provider with a minimal list request.
// The first successful verification also enables the integration.
func (c *Client) Verify(ctx context.Context) error {
	c.mu.Lock()
	key := c.cfg.Credential
	c.mu.Unlock()

	if key == "" {
		return ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/transcript?limit=1", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.withdrawVerification()
		return fmt.Errorf("verification request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.withdrawVerification()
		c.logger.Warn("transcription key verification rejected", zap.Int("status", resp.StatusCode))
		return fmt.Errorf("transcribe: provider rejected the key (status %d)", resp.StatusCode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	firstVerification := !c.cfg.IsVerified
	c.cfg.IsVerified = true
	c.cfg.LastTestedAt = &now
	if firstVerification {
		c.cfg.Enabled = true
	}
	if err := c.persistLocked(); err != nil {
		return err
	}

	c.logger.Info("transcription key verified")
	return nil
}

// withdrawVerification clears the verified state after a failed test. A key
// the provider no longer accepts must pass a new test before transcription
// resumes.
func (c *Client) withdrawVerification() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.IsVerified = false
	c.cfg.Enabled = false
	if err := c.persistLocked(); err != nil {
		c.logger.Error("failed to persist transcription config", zap.Error(err))
	}
}

// Transcribe uploads the audio and runs a transcription job to completion.
// All configuration gates are checked before any network activity.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (*model.TranscriptionResult, error) {
	c.mu.Lock()
	cfg := c.cfg
	c.mu.Unlock()

	switch {
	case cfg.Credential == "":
		return nil, ErrNotConfigured
	case !cfg.IsVerified:
		return nil, ErrNotVerified
	case !cfg.Enabled:
		return nil, ErrNotEnabled
	}

	uploadURL, err := c.upload(ctx, cfg.Credential, audio)
	if err != nil {
		return nil, err
	}

	id, err := c.createJob(ctx, cfg.Credential, uploadURL)
	if err != nil {
		return nil, err
	}

	c.logger.Info("transcription job created", zap.String("job_id", id))
	return c.poll(ctx, cfg.Credential, id)
}

// upload sends the raw audio bytes and returns the provider's temporary URL.
func (c *Client) upload(ctx context.Context, key string, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/upload", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Authorization", key)
	req.Header.Set("Content-Type", "application/octet-stream")

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("audio upload failed: %w", err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("transcribe: provider returned no upload URL")
	}
	return out.UploadURL, nil
}

// jobRequest is the transcription job creation body. Language and redaction
// settings are fixed; they are not user-configurable.
type jobRequest struct {
	AudioURL          string   `json:"audio_url"`
	LanguageCode      string   `json:"language_code"`
	Punctuate         bool     `json:"punctuate"`
	FormatText        bool     `json:"format_text"`
	RedactPII         bool     `json:"redact_pii"`
	RedactPIIPolicies []string `json:"redact_pii_policies"`
	RedactPIISub      string   `json:"redact_pii_sub"`
}

type jobResponse struct {
	ID         string  `json:"id"`
	Status     string  `json:"status"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

func (c *Client) createJob(ctx context.Context, key, audioURL string) (string, error) {
	body, err := json.Marshal(jobRequest{
		AudioURL:          audioURL,
		LanguageCode:      "es",
		Punctuate:         true,
		FormatText:        true,
		RedactPII:         true,
		RedactPIIPolicies: redactionPolicies,
		RedactPIISub:      "hash",
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode job request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build job request: %w", err)
	}
	req.Header.Set("Authorization", key)
	req.Header.Set("Content-Type", "application/json")

	var out jobResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("job creation failed: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("transcribe: provider returned no job id")
	}
	return out.ID, nil
}

// poll fetches the job until it reaches a terminal status.
func (c *Client) poll(ctx context.Context, key, id string) (*model.TranscriptionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/transcript/"+id, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build poll request: %w", err)
		}
		req.Header.Set("Authorization", key)

		var out jobResponse
		if err := c.do(req, &out); err != nil {
			return nil, fmt.Errorf("job poll failed: %w", err)
		}

		switch out.Status {
		case "completed":
			c.logger.Info("transcription completed",
				zap.String("job_id", id),
				zap.Float64("confidence", out.Confidence),
			)
			return &model.TranscriptionResult{
				ID:         out.ID,
				Text:       out.Text,
				Confidence: out.Confidence,
				Status:     out.Status,
			}, nil
		case "error":
			return nil, &FailedError{Message: out.Error}
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("transcribe: job %s did not finish: %w", id, ctx.Err())
		case <-ticker.C:
		}
	}
}

// do executes the request and decodes a JSON response, turning non-2xx
// answers into errors carrying the provider's message.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var provider struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &provider) == nil && provider.Error != "" {
			return fmt.Errorf("provider error (status %d): %s", resp.StatusCode, provider.Error)
		}
		return fmt.Errorf("provider error (status %d)", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) persistLocked() error {
	if err := c.store.Save(configKey, c.cfg); err != nil {
		return fmt.Errorf("failed to persist transcription config: %w", err)
	}
	return nil
}
