package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Capture       CaptureConfig
	Upload        UploadConfig
	Transcription TranscriptionConfig
	Webhook       WebhookConfig
	Paraclinic    ParaclinicConfig
	Logging       LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	Environment     string
	ShutdownTimeout time.Duration
}

// StorageConfig holds the configuration-persistence directory.
// EncryptionKey, when set, is a base64-encoded 32-byte key used to encrypt
// stored configuration at rest. Integration credentials live in that store.
type StorageConfig struct {
	Dir           string
	EncryptionKey string
}

// CaptureConfig holds capture state machine tunables
type CaptureConfig struct {
	// AutoResetGrace is the delay between a successful delivery of a
	// recorded consultation and the automatic reset of the capture session.
	AutoResetGrace time.Duration
}

// UploadConfig holds uploaded-audio validation limits
type UploadConfig struct {
	MaxSizeBytes       int64
	MaxDurationSeconds float64
}

// TranscriptionConfig holds speech-to-text provider configuration.
// The API key is provisioned here explicitly; the application never embeds
// a default credential.
type TranscriptionConfig struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// WebhookConfig holds delivery webhook policy configuration
type WebhookConfig struct {
	// AllowedDomains restricts webhook hosts to these domains and their
	// subdomains. Empty means any https non-IP host is accepted.
	AllowedDomains []string
}

// ParaclinicConfig holds paraclinic upload limits
type ParaclinicConfig struct {
	MaxImages int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string // json or console
}

// Load reads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()

	// Bind specific environment variables
	bindEnvVars(v)

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Webhook.AllowedDomains = splitDomains(v.GetString("webhook.alloweddomains"))

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.shutdowntimeout", 30*time.Second)

	// Storage defaults
	v.SetDefault("storage.dir", "./data")

	// Capture defaults
	v.SetDefault("capture.autoresetgrace", 3*time.Second)

	// Upload defaults: ~120 MB, ~60 minutes
	v.SetDefault("upload.maxsizebytes", int64(120*1024*1024))
	v.SetDefault("upload.maxdurationseconds", float64(60*60))

	// Transcription provider defaults
	v.SetDefault("transcription.baseurl", "https://api.assemblyai.com")
	v.SetDefault("transcription.pollinterval", 3*time.Second)
	v.SetDefault("transcription.polltimeout", 10*time.Minute)

	// Paraclinic defaults
	v.SetDefault("paraclinic.maximages", 6)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// bindEnvVars binds environment variables to config keys
func bindEnvVars(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "PORT")
	v.BindEnv("server.environment", "ENV", "ENVIRONMENT")

	// Storage
	v.BindEnv("storage.dir", "STORAGE_DIR")
	v.BindEnv("storage.encryptionkey", "STORAGE_ENCRYPTION_KEY")

	// Capture
	v.BindEnv("capture.autoresetgrace", "CAPTURE_AUTO_RESET_GRACE")

	// Upload limits
	v.BindEnv("upload.maxsizebytes", "UPLOAD_MAX_SIZE_BYTES")
	v.BindEnv("upload.maxdurationseconds", "UPLOAD_MAX_DURATION_SECONDS")

	// Transcription provider
	v.BindEnv("transcription.baseurl", "TRANSCRIPTION_BASE_URL")
	v.BindEnv("transcription.apikey", "TRANSCRIPTION_API_KEY")
	v.BindEnv("transcription.pollinterval", "TRANSCRIPTION_POLL_INTERVAL")
	v.BindEnv("transcription.polltimeout", "TRANSCRIPTION_POLL_TIMEOUT")

	// Webhook policy
	v.BindEnv("webhook.alloweddomains", "ALLOWED_WEBHOOK_DOMAINS")

	// Paraclinic
	v.BindEnv("paraclinic.maximages", "PARACLINIC_MAX_IMAGES")

	// Logging
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")
}

// splitDomains parses a comma-separated allow-list into normalized hosts
func splitDomains(raw string) []string {
	if raw == "" {
		return nil
	}

	var domains []string
	for _, d := range strings.Split(raw, ",") {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			domains = append(domains, d)
		}
	}
	return domains
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir is required")
	}

	if c.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("upload.maxsizebytes must be positive")
	}

	if c.Upload.MaxDurationSeconds <= 0 {
		return fmt.Errorf("upload.maxdurationseconds must be positive")
	}

	if c.Transcription.BaseURL == "" {
		return fmt.Errorf("transcription.baseurl is required")
	}

	if c.Paraclinic.MaxImages <= 0 {
		return fmt.Errorf("paraclinic.maximages must be positive")
	}

	return nil
}
