package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrNotFound is returned when no document exists under the requested key.
var ErrNotFound = errors.New("storage: key not found")

// Store persists small configuration documents as key -> JSON. It stands in
// for the browser's local storage in the original design; delivery logs are
// deliberately never written through it.
type Store interface {
	Load(key string, v any) error
	Save(key string, v any) error
	Delete(key string) error
}

// FileStore keeps each document as one JSON file inside a base directory.
type FileStore struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger
}

// NewFileStore creates a FileStore rooted at dir, creating it if needed.
func NewFileStore(fs afero.Fs, dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is required")
	}

	if err := fs.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStore{
		fs:     fs,
		dir:    dir,
		logger: logger,
	}, nil
}

// Load reads the document stored under key into v.
func (s *FileStore) Load(key string, v any) error {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read %q: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %q: %w", key, err)
	}

	return nil
}

// Save writes v as the document stored under key.
func (s *FileStore) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	if err := afero.WriteFile(s.fs, s.path(key), data, 0o600); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}

	s.logger.Debug("configuration saved", zap.String("key", key))
	return nil
}

// Delete removes the document stored under key. Missing keys are not errors.
func (s *FileStore) Delete(key string) error {
	err := s.fs.Remove(s.path(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (s *FileStore) path(key string) string {
	// Keys are fixed identifiers, but sanitize anyway so a bad key can
	// never escape the storage directory.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(s.dir, safe+".json")
}
