package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Backend is a durable key-value store.
type Backend interface {
	// Get returns the value, whether it was found, and any error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Persister stores a Session as JSON under a single namespaced key.
type Persister struct {
	backend  Backend
	key      string
	strategy EncryptionStrategy
}

// NewPersister creates a Persister. A nil strategy stores plaintext.
func NewPersister(backend Backend, key string, strategy EncryptionStrategy) *Persister {
	if strategy == nil {
		strategy = NoEncryptionStrategy{}
	}
	return &Persister{
		backend:  backend,
		key:      key,
		strategy: strategy,
	}
}

// Load reads the persisted Session. A value that cannot be decrypted or
// decoded is removed on a best-effort basis and reported as an error.
func (p *Persister) Load(ctx context.Context) (Session, bool, error) {
	storageKey := p.strategy.StorageKey(p.key)

	value, found, err := p.backend.Get(ctx, storageKey)
	if err != nil {
		return Session{}, false, fmt.Errorf("reading session: %w", err)
	}
	if !found {
		return Session{}, false, nil
	}

	data, err := p.strategy.Open(value, p.key)
	if err != nil {
		p.discard(ctx, storageKey)
		return Session{}, false, fmt.Errorf("session decryption failure for key %q: %w", p.key, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		p.discard(ctx, storageKey)
		return Session{}, false, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return s, true, nil
}

func (p *Persister) Save(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	value, err := p.strategy.Seal(data, p.key)
	if err != nil {
		return err
	}

	if err := p.backend.Set(ctx, p.strategy.StorageKey(p.key), value); err != nil {
		return fmt.Errorf("writing session: %w", err)
	}
	return nil
}

func (p *Persister) Clear(ctx context.Context) error {
	if err := p.backend.Delete(ctx, p.strategy.StorageKey(p.key)); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// Close releases the encryption strategy and the backend.
func (p *Persister) Close() error {
	if err := p.strategy.Close(); err != nil {
		log.Warn().Err(err).Msg("error closing session encryption strategy")
	}
	return p.backend.Close()
}

func (p *Persister) discard(ctx context.Context, storageKey string) {
	if err := p.backend.Delete(ctx, storageKey); err != nil {
		log.Warn().Err(err).Str("key", p.key).Msg("session: could not remove unreadable value")
	}
}
