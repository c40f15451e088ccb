package encryption

import (
	"bytes"
	"fmt"
	"os"

	"github.com/tink-crypto/tink-go/v2/aead"
	"github.com/tink-crypto/tink-go/v2/insecurecleartextkeyset"
	"github.com/tink-crypto/tink-go/v2/keyset"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// Validate performs a test encryption/decryption cycle to verify the AEAD is
// working. Call this at startup to fail fast if encryption is misconfigured.
func Validate(a tink.AEAD) error {
	testPlaintext := []byte("campus-client-encryption-test")
	testAAD := []byte("validation")

	ciphertext, err := a.Encrypt(testPlaintext, testAAD)
	if err != nil {
		return fmt.Errorf("validation encrypt failed: %w", err)
	}

	decrypted, err := a.Decrypt(ciphertext, testAAD)
	if err != nil {
		return fmt.Errorf("validation decrypt failed: %w", err)
	}

	if !bytes.Equal(testPlaintext, decrypted) {
		return fmt.Errorf("validation round-trip failed: plaintext mismatch")
	}

	return nil
}

// NewAEADFromKeysetFile reads a cleartext JSON Tink keyset from path and
// returns a validated AEAD primitive. The keyset file is expected to be
// protected by the device (file permissions, OS keychain export, etc).
func NewAEADFromKeysetFile(path string) (tink.AEAD, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening keyset file: %w", err)
	}
	defer f.Close()

	handle, err := insecurecleartextkeyset.Read(keyset.NewJSONReader(f))
	if err != nil {
		return nil, fmt.Errorf("reading keyset %s: %w", path, err)
	}

	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD primitive: %w", err)
	}

	if err := Validate(primitive); err != nil {
		return nil, fmt.Errorf("validating AEAD: %w", err)
	}

	return primitive, nil
}

// WriteKeysetFile generates a new AES256-GCM keyset and writes it as
// cleartext JSON to path with owner-only permissions.
func WriteKeysetFile(path string) error {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return fmt.Errorf("creating keyset handle: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating keyset file: %w", err)
	}
	defer f.Close()

	if err := insecurecleartextkeyset.Write(handle, keyset.NewJSONWriter(f)); err != nil {
		return fmt.Errorf("writing keyset: %w", err)
	}

	return nil
}

// NewTestAEAD creates a tink.AEAD for testing.
// Only use in tests: keys are not persisted or protected.
func NewTestAEAD() (tink.AEAD, error) {
	handle, err := keyset.NewHandle(aead.AES256GCMKeyTemplate())
	if err != nil {
		return nil, fmt.Errorf("creating test keyset handle: %w", err)
	}
	primitive, err := aead.New(handle)
	if err != nil {
		return nil, fmt.Errorf("creating test AEAD primitive: %w", err)
	}
	return primitive, nil
}
