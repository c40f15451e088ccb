package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/smartcampus/campus-client/internal/config"
)

// Serve runs server on listener until ctx is done or the process receives
// SIGINT or SIGTERM. It then stops accepting requests, waits for in-flight
// requests up to the configured timeout and runs hooks.
func Serve(ctx context.Context, cfg config.ServerConfig, server *http.Server, listener net.Listener, hooks *ShutdownHooks) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("address", listener.Addr().String()).Msg("server: listening")
		serverErr <- server.Serve(listener)
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			_ = hooks.Execute(context.Background())
			return fmt.Errorf("server stopped unexpectedly: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("server: shutdown requested")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		err = fmt.Errorf("server shutdown failed: %w", err)
	}

	return errors.Join(err, hooks.Execute(shutdownCtx))
}
