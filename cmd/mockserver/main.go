// This command is only used for local development: it serves an in-memory
// campus API that the client can be pointed at with CAMPUS_API_URL.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/smartcampus/campus-client/internal/config"
	"github.com/smartcampus/campus-client/internal/jwt"
	"github.com/smartcampus/campus-client/internal/mockapi"
	"github.com/smartcampus/campus-client/internal/observe"
	"github.com/smartcampus/campus-client/internal/server"
)

func main() {
	configureLogging()

	if err := launchServer(); err != nil {
		log.Fatal().Err(err).Msg("mock server failed")
	}
}

func launchServer() error {
	ctx := context.Background()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("configuration load failed: %w", err)
	}

	hooks := &server.ShutdownHooks{}

	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("telemetry bootstrap failed: %w", err)
	}
	hooks.AddContext("telemetry", shutdownTelemetry)

	issuer, err := jwt.NewIssuer("smartcampus-mock", []byte(cfg.Server.SigningKey), cfg.Server.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("token issuer configuration failed: %w", err)
	}

	api := mockapi.New(issuer)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}

	srv := &http.Server{
		Handler:           api.Handler(),
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	log.Info().
		Str("email", mockapi.DemoEmail).
		Str("password", mockapi.DemoPassword).
		Msg("mock server: demo account available")

	if err := server.Serve(ctx, cfg.Server, srv, listener, hooks); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

func configureLogging() {
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	log.Logger = log.Level(zerolog.InfoLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stdout}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}
