package storage

import (
	"encoding/json"
	"fmt"

	"github.com/apc939/asistentehc/internal/security"
)

// EncryptedStore wraps a Store and seals every document with AES-256-GCM
// before it reaches the underlying storage. Integration credentials are
// persisted through the store, so an operator can opt into at-rest
// encryption with a single key.
type EncryptedStore struct {
	inner     Store
	encryptor *security.Encryptor
}

// NewEncryptedStore wraps inner so that all documents are encrypted at rest.
func NewEncryptedStore(inner Store, encryptor *security.Encryptor) (*EncryptedStore, error) {
	if inner == nil {
		return nil, fmt.Errorf("inner store is required")
	}
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	return &EncryptedStore{
		inner:     inner,
		encryptor: encryptor,
	}, nil
}

// Load reads and decrypts the document stored under key into v.
func (s *EncryptedStore) Load(key string, v any) error {
	var sealed string
	if err := s.inner.Load(key, &sealed); err != nil {
		return err
	}

	plaintext, err := s.encryptor.Decrypt(sealed)
	if err != nil {
		return fmt.Errorf("failed to decrypt %q: %w", key, err)
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("failed to decode %q: %w", key, err)
	}

	return nil
}

// Save encrypts v and writes the sealed document under key.
func (s *EncryptedStore) Save(key string, v any) error {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}

	sealed, err := s.encryptor.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt %q: %w", key, err)
	}

	return s.inner.Save(key, sealed)
}

// Delete removes the document stored under key.
func (s *EncryptedStore) Delete(key string) error {
	return s.inner.Delete(key)
}
