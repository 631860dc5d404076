package upload

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/apc939/asistentehc/pkg/model"
)

// Validation errors. All of them are recoverable: the user re-selects a file.
var (
	ErrUnsupportedFormat = errors.New("upload: unsupported audio format")
	ErrFileTooLarge      = errors.New("upload: file exceeds the maximum size")
	ErrDurationExceeded  = errors.New("upload: audio exceeds the maximum duration")
	ErrProbe             = errors.New("upload: audio duration could not be determined")
)

// acceptedExtensions is the filename-extension side of the accepted audio set.
var acceptedExtensions = map[string]bool{
	".webm": true,
	".mp3":  true,
	".mpeg": true,
	".mp4":  true,
	".m4a":  true,
	".wav":  true,
	".ogg":  true,
	".opus": true,
	".flac": true,
}

// acceptedMimePrefixes is the declared/sniffed content-type side. Any
// audio/* type is accepted, plus the container types some platforms report
// for audio-only files.
var acceptedMimePrefixes = []string{
	"audio/",
	"video/webm",
	"video/mp4",
	"application/ogg",
}

// DurationProber estimates the duration of an encoded audio file by decoding
// just enough of its metadata.
type DurationProber interface {
	ProbeDuration(data []byte, mimeType string) (float64, error)
}

// Validator checks externally supplied audio files before they are treated
// as equivalent to a captured recording.
type Validator struct {
	maxSizeBytes       int64
	maxDurationSeconds float64
	prober             DurationProber
	logger             *zap.Logger
}

// NewValidator creates a Validator with the given limits.
func NewValidator(maxSizeBytes int64, maxDurationSeconds float64, prober DurationProber, logger *zap.Logger) (*Validator, error) {
	if maxSizeBytes <= 0 || maxDurationSeconds <= 0 {
		return nil, fmt.Errorf("upload limits must be positive")
	}
	if prober == nil {
		return nil, fmt.Errorf("duration prober is required")
	}

	return &Validator{
		maxSizeBytes:       maxSizeBytes,
		maxDurationSeconds: maxDurationSeconds,
		prober:             prober,
		logger:             logger,
	}, nil
}

// Validate checks the file's type, size and duration in that order and, on
// success, returns the immutable accepted record. The declared content type
// may be empty; the content is sniffed as a fallback.
func (v *Validator) Validate(filename string, declaredType string, data []byte) (*model.UploadedAudio, error) {
	sniffed := mimetype.Detect(data).String()

	if !v.typeAccepted(filename, declaredType, sniffed) {
		v.logger.Warn("rejected upload: unsupported format",
			zap.String("filename", filename),
			zap.String("declared_type", declaredType),
			zap.String("sniffed_type", sniffed),
		)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}

	size := int64(len(data))
	if size > v.maxSizeBytes {
		v.logger.Warn("rejected upload: too large",
			zap.String("filename", filename),
			zap.Int64("size", size),
			zap.Int64("max", v.maxSizeBytes),
		)
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, size, v.maxSizeBytes)
	}

	effectiveType := declaredType
	if effectiveType == "" {
		effectiveType = sniffed
	}

	duration, err := v.prober.ProbeDuration(data, effectiveType)
	if err != nil {
		v.logger.Warn("rejected upload: duration probe failed",
			zap.String("filename", filename),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrProbe, err)
	}

	if duration > v.maxDurationSeconds {
		v.logger.Warn("rejected upload: duration exceeded",
			zap.String("filename", filename),
			zap.Float64("duration_seconds", duration),
			zap.Float64("max_seconds", v.maxDurationSeconds),
		)
		return nil, fmt.Errorf("%w: %.0fs (max %.0fs)", ErrDurationExceeded, duration, v.maxDurationSeconds)
	}

	v.logger.Info("upload accepted",
		zap.String("filename", filename),
		zap.Int64("size", size),
		zap.Float64("duration_seconds", duration),
	)

	return &model.UploadedAudio{
		Filename:                 filename,
		Size:                     size,
		MimeType:                 effectiveType,
		Data:                     data,
		EstimatedDurationSeconds: duration,
		AcceptedAt:               time.Now(),
	}, nil
}

func (v *Validator) typeAccepted(filename, declaredType, sniffedType string) bool {
	if acceptedExtensions[strings.ToLower(filepath.Ext(filename))] {
		return true
	}
	for _, candidate := range []string{declaredType, sniffedType} {
		candidate = strings.ToLower(strings.TrimSpace(candidate))
		for _, prefix := range acceptedMimePrefixes {
			if strings.HasPrefix(candidate, prefix) {
				return true
			}
		}
	}
	return false
}
