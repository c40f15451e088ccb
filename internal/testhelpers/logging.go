package testhelpers

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SetupLogger routes the global logger to the test output at debug level,
// restoring the previous logger when the test completes.
func SetupLogger(t *testing.T) {
	t.Helper()

	previous := log.Logger
	previousContext := zerolog.DefaultContextLogger

	log.Logger = zerolog.New(zerolog.NewConsoleWriter(zerolog.ConsoleTestWriter(t))).
		Level(zerolog.DebugLevel).
		With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger

	t.Cleanup(func() {
		log.Logger = previous
		zerolog.DefaultContextLogger = previousContext
	})
}
