package encryption

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tink-crypto/tink-go/v2/tink"
)

func TestReloadingAEAD_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyset.json")
	require.NoError(t, WriteKeysetFile(path))

	r, err := NewReloadingAEADFromFile(context.Background(), path, time.Hour)
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Close()) }()

	ct, err := r.Encrypt([]byte("token"), []byte("smartcampus:session"))
	require.NoError(t, err)
	assert.NotEqual(t, []byte("token"), ct)

	pt, err := r.Decrypt(ct, []byte("smartcampus:session"))
	require.NoError(t, err)
	assert.Equal(t, []byte("token"), pt)

	_, err = r.Decrypt(ct, []byte("other-key"))
	assert.Error(t, err, "associated data must bind the ciphertext")
}

func TestReloadingAEAD_MissingFile(t *testing.T) {
	r, err := NewReloadingAEADFromFile(context.Background(), filepath.Join(t.TempDir(), "absent.json"), time.Hour)

	assert.Nil(t, r)
	assert.ErrorContains(t, err, "opening keyset file")
}

func TestReloadingAEAD_InitialLoadFailure(t *testing.T) {
	loadErr := errors.New("keyset unreadable")

	r, err := newReloadingAEAD(context.Background(), failingLoader(loadErr), time.Hour)

	assert.Nil(t, r)
	assert.ErrorIs(t, err, loadErr)
}

func TestReloadingAEAD_ReloadReplacesPrimitive(t *testing.T) {
	first := &passthroughAEAD{id: "first"}
	second := &passthroughAEAD{id: "second"}

	calls := atomic.Int32{}
	loader := func(context.Context) (tink.AEAD, error) {
		if calls.Add(1) == 1 {
			return first, nil
		}
		return second, nil
	}

	r, err := newReloadingAEAD(context.Background(), loader, 10*time.Millisecond)
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Close()) }()

	require.Eventually(t, func() bool {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return r.aead == tink.AEAD(second)
	}, time.Second, 5*time.Millisecond)
}

func TestReloadingAEAD_ReloadFailureKeepsCurrent(t *testing.T) {
	original := &passthroughAEAD{id: "original"}

	calls := atomic.Int32{}
	loader := func(context.Context) (tink.AEAD, error) {
		if calls.Add(1) == 1 {
			return original, nil
		}
		return nil, errors.New("reload failed")
	}

	r, err := newReloadingAEAD(context.Background(), loader, 10*time.Millisecond)
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Close()) }()

	require.Eventually(t, func() bool {
		return calls.Load() >= 3
	}, time.Second, 5*time.Millisecond)

	r.mu.RLock()
	active := r.aead
	r.mu.RUnlock()
	assert.Same(t, original, active)
}

func TestReloadingAEAD_CloseStopsReloading(t *testing.T) {
	calls := atomic.Int32{}
	loader := func(context.Context) (tink.AEAD, error) {
		calls.Add(1)
		return &passthroughAEAD{}, nil
	}

	r, err := newReloadingAEAD(context.Background(), loader, 10*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	after := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "loader should not be called after Close")
}

func TestReloadingAEAD_ConcurrentUse(t *testing.T) {
	r, err := newReloadingAEAD(context.Background(), staticLoader(&passthroughAEAD{}), 5*time.Millisecond)
	require.NoError(t, err)
	defer func() { assert.NoError(t, r.Close()) }()

	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			for range 50 {
				_, _ = r.Encrypt([]byte("data"), []byte("aad"))
				_, _ = r.Decrypt([]byte("data"), []byte("aad"))
			}
		})
	}
	wg.Wait()
}

func TestValidate(t *testing.T) {
	primitive, err := NewTestAEAD()
	require.NoError(t, err)
	assert.NoError(t, Validate(primitive))

	err = Validate(&brokenAEAD{encryptErr: errors.New("encrypt broken")})
	assert.ErrorContains(t, err, "validation encrypt failed")

	err = Validate(&brokenAEAD{decryptErr: errors.New("decrypt broken")})
	assert.ErrorContains(t, err, "validation decrypt failed")
}

// passthroughAEAD lets tests identify which instance is active.
type passthroughAEAD struct {
	id string
}

func (a *passthroughAEAD) Encrypt(plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

func (a *passthroughAEAD) Decrypt(ciphertext, _ []byte) ([]byte, error) {
	return ciphertext, nil
}

type brokenAEAD struct {
	encryptErr error
	decryptErr error
}

func (a *brokenAEAD) Encrypt(plaintext, _ []byte) ([]byte, error) {
	if a.encryptErr != nil {
		return nil, a.encryptErr
	}
	return plaintext, nil
}

func (a *brokenAEAD) Decrypt(ciphertext, _ []byte) ([]byte, error) {
	if a.decryptErr != nil {
		return nil, a.decryptErr
	}
	return ciphertext, nil
}

func staticLoader(a tink.AEAD) keysetLoader {
	return func(context.Context) (tink.AEAD, error) {
		return a, nil
	}
}

func failingLoader(err error) keysetLoader {
	return func(context.Context) (tink.AEAD, error) {
		return nil, err
	}
}
