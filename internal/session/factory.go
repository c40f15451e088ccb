package session

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/smartcampus/campus-client/internal/config"
	"github.com/smartcampus/campus-client/internal/encryption"
	"github.com/valkey-io/valkey-go"
)

// NewPersisterFromConfig creates the Persister selected by the session
// configuration. The caller owns the result and must Close it.
func NewPersisterFromConfig(ctx context.Context, cfg config.SessionConfig) (*Persister, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	var strategy EncryptionStrategy
	if cfg.Encryption.Enabled {
		aead, err := encryption.NewReloadingAEADFromFile(ctx, cfg.Encryption.KeysetFile, encryption.DefaultReloadInterval)
		if err != nil {
			_ = backend.Close()
			return nil, fmt.Errorf("initializing session encryption: %w", err)
		}
		strategy = NewTinkEncryptionStrategy(aead)

		log.Debug().Str("keyset", cfg.Encryption.KeysetFile).Msg("session encryption enabled")
	}

	return NewPersister(backend, cfg.Key, strategy), nil
}

func newBackend(cfg config.SessionConfig) (Backend, error) {
	switch cfg.Type {
	case "file":
		dir := cfg.Dir
		if dir == "" {
			var err error
			dir, err = DefaultDir()
			if err != nil {
				return nil, err
			}
		}

		log.Debug().Str("session_store", "file").Str("dir", dir).Msg("initializing session storage")
		return NewFileBackend(dir)

	case "memory":
		log.Debug().Str("session_store", "memory").Msg("initializing session storage")
		return NewMemoryBackend(), nil

	case "valkey":
		log.Debug().
			Str("session_store", "valkey").
			Str("address", cfg.Valkey.Address).
			Bool("tls", cfg.Valkey.TLS).
			Msg("initializing session storage")

		if cfg.Valkey.Address == "" {
			return nil, fmt.Errorf("valkey address is required when session store is valkey")
		}

		opts := valkey.ClientOption{
			InitAddress:  []string{cfg.Valkey.Address},
			Username:     cfg.Valkey.Username,
			Password:     cfg.Valkey.Password,
			DisableCache: true,
		}
		if cfg.Valkey.TLS {
			opts.TLSConfig = &tls.Config{
				MinVersion: tls.VersionTLS12,
			}
		}

		client, err := valkey.NewClient(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create valkey client: %w", err)
		}
		return NewValkeyBackend(client), nil

	default:
		return nil, fmt.Errorf("invalid session store %q: must be one of file, memory, valkey", cfg.Type)
	}
}
