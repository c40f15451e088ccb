package session

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/tink-crypto/tink-go/v2/tink"
)

// valuePrefix marks encrypted values so that plaintext left over from before
// encryption was enabled is detected rather than fed to the AEAD.
const valuePrefix = "cs-enc:"

// storageKeyPrefix namespaces encrypted entries away from plaintext ones.
const storageKeyPrefix = "enc:"

// EncryptionStrategy defines how the persisted Session is protected and how
// its storage key is decorated.
type EncryptionStrategy interface {
	// Seal encrypts data for storage. The key is bound as associated data.
	Seal(data []byte, key string) ([]byte, error)

	// Open reverses Seal. The key must match the one used to seal.
	Open(value []byte, key string) ([]byte, error)

	StorageKey(key string) string

	Close() error
}

// NoEncryptionStrategy stores values as-is.
type NoEncryptionStrategy struct{}

func (NoEncryptionStrategy) Seal(data []byte, _ string) ([]byte, error) {
	return data, nil
}

func (NoEncryptionStrategy) Open(value []byte, _ string) ([]byte, error) {
	return value, nil
}

func (NoEncryptionStrategy) StorageKey(key string) string {
	return key
}

func (NoEncryptionStrategy) Close() error {
	return nil
}

// TinkEncryptionStrategy encrypts values with a Tink AEAD, using the storage
// key as associated data, then base64 encodes and prefixes them.
type TinkEncryptionStrategy struct {
	aead tink.AEAD
}

func NewTinkEncryptionStrategy(aead tink.AEAD) *TinkEncryptionStrategy {
	return &TinkEncryptionStrategy{aead: aead}
}

func (s *TinkEncryptionStrategy) Seal(data []byte, key string) ([]byte, error) {
	ciphertext, err := s.aead.Encrypt(data, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("encrypting session: %w", err)
	}

	out := make([]byte, 0, len(valuePrefix)+base64.StdEncoding.EncodedLen(len(ciphertext)))
	out = append(out, valuePrefix...)
	return base64.StdEncoding.AppendEncode(out, ciphertext), nil
}

func (s *TinkEncryptionStrategy) Open(value []byte, key string) ([]byte, error) {
	encoded, ok := bytes.CutPrefix(value, []byte(valuePrefix))
	if !ok {
		return nil, fmt.Errorf("missing %q prefix: value may be unencrypted or corrupted", valuePrefix)
	}

	decoded, err := base64.StdEncoding.AppendDecode(nil, encoded)
	if err != nil {
		return nil, fmt.Errorf("base64 decode failed: %w", err)
	}

	plaintext, err := s.aead.Decrypt(decoded, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

func (s *TinkEncryptionStrategy) StorageKey(key string) string {
	return storageKeyPrefix + key
}

func (s *TinkEncryptionStrategy) Close() error {
	if closer, ok := s.aead.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
