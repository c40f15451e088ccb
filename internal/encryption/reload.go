package encryption

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tink-crypto/tink-go/v2/tink"
)

// DefaultReloadInterval is how often a keyset file is re-read.
const DefaultReloadInterval = 15 * time.Minute

// keysetLoader produces an AEAD from the current key material.
type keysetLoader func(ctx context.Context) (tink.AEAD, error)

// ReloadingAEAD wraps a tink.AEAD and periodically reloads it from its
// source, so a rotated keyset file is picked up without restarting. Reload
// failures are logged and the existing primitive stays active.
type ReloadingAEAD struct {
	mu     sync.RWMutex
	aead   tink.AEAD
	loader keysetLoader
	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

// NewReloadingAEADFromFile loads the keyset at path and reloads it every
// interval. The first load is synchronous: if it fails no goroutine is
// started.
func NewReloadingAEADFromFile(ctx context.Context, path string, interval time.Duration) (*ReloadingAEAD, error) {
	loader := func(context.Context) (tink.AEAD, error) {
		return NewAEADFromKeysetFile(path)
	}

	return newReloadingAEAD(ctx, loader, interval)
}

func newReloadingAEAD(ctx context.Context, loader keysetLoader, interval time.Duration) (*ReloadingAEAD, error) {
	initial, err := loader(ctx)
	if err != nil {
		return nil, err
	}

	r := &ReloadingAEAD{
		aead:   initial,
		loader: loader,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go r.reloadLoop(ctx, interval)

	return r, nil
}

func (r *ReloadingAEAD) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aead.Encrypt(plaintext, associatedData)
}

func (r *ReloadingAEAD) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.aead.Decrypt(ciphertext, associatedData)
}

// Close stops the reload goroutine and waits for it to exit. It is safe to
// call more than once.
func (r *ReloadingAEAD) Close() error {
	r.once.Do(func() { close(r.stopCh) })
	<-r.doneCh
	return nil
}

func (r *ReloadingAEAD) reloadLoop(ctx context.Context, interval time.Duration) {
	defer close(r.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reload(ctx)
		}
	}
}

func (r *ReloadingAEAD) reload(ctx context.Context) {
	next, err := r.loader(ctx)
	if err != nil {
		log.Warn().
			Err(err).
			Msg("session keyset reload failed, continuing with current keyset")
		return
	}

	r.mu.Lock()
	r.aead = next
	r.mu.Unlock()

	log.Debug().Msg("session keyset reloaded")
}
