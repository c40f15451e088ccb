package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/valkey-io/valkey-go"
)

// FileBackend keeps one file per key in a directory. Writes go to a
// temporary file that is renamed into place, so a crash never leaves a
// partially written session behind.
type FileBackend struct {
	dir string
}

// NewFileBackend creates the directory (owner-only) if required.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// DefaultDir is the per-user configuration directory for the client.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(base, "smartcampus"), nil
}

var fileNameReplacer = strings.NewReplacer(":", "_", "/", "_", "\\", "_", "..", "_")

func (b *FileBackend) path(key string) string {
	return filepath.Join(b.dir, fileNameReplacer.Replace(key)+".json")
}

func (b *FileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := os.ReadFile(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *FileBackend) Set(_ context.Context, key string, value []byte) error {
	tmp, err := os.CreateTemp(b.dir, ".session-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, b.path(key))
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	err := os.Remove(b.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (b *FileBackend) Close() error {
	return nil
}

// MemoryBackend keeps values for the life of the process only.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

func (m *MemoryBackend) Close() error {
	return nil
}

// ValkeyBackend stores values in Valkey without expiry: a session lives until
// it is cleared.
type ValkeyBackend struct {
	client valkey.Client
}

func NewValkeyBackend(client valkey.Client) *ValkeyBackend {
	return &ValkeyBackend{client: client}
}

func (v *ValkeyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	result := v.client.Do(ctx, v.client.B().Get().Key(key).Build())
	if err := result.Error(); err != nil {
		// Key not found is not an error in our semantics
		if valkey.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get session value: %w", err)
	}

	data, err := result.AsBytes()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read session value: %w", err)
	}
	return data, true, nil
}

func (v *ValkeyBackend) Set(ctx context.Context, key string, value []byte) error {
	cmd := v.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to set session value: %w", err)
	}
	return nil
}

func (v *ValkeyBackend) Delete(ctx context.Context, key string) error {
	cmd := v.client.B().Del().Key(key).Build()
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to delete session value: %w", err)
	}
	return nil
}

func (v *ValkeyBackend) Close() error {
	v.client.Close()
	return nil
}
