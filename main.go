package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/smartcampus/campus-client/internal/audit"
	"github.com/smartcampus/campus-client/internal/cache"
	"github.com/smartcampus/campus-client/internal/campus"
	"github.com/smartcampus/campus-client/internal/config"
	"github.com/smartcampus/campus-client/internal/gateway"
	"github.com/smartcampus/campus-client/internal/observe"
	"github.com/smartcampus/campus-client/internal/server"
	"github.com/smartcampus/campus-client/internal/session"
)

func main() {
	configureLogging()

	logBuildInfo()

	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "configuration load failed: %v\n", err)
		return 1
	}

	hooks := &server.ShutdownHooks{}
	defer func() {
		if err := hooks.Execute(context.Background()); err != nil {
			log.Warn().Err(err).Msg("shutdown: resources not released cleanly")
		}
	}()

	client, err := configureClient(ctx, cfg, hooks)
	if err != nil {
		fmt.Fprintf(stderr, "client configuration failed: %v\n", err)
		return 1
	}

	return report(stderr, execute(ctx, client, stdout, args))
}

// configureClient wires the campus client from configuration. Resources that
// need releasing are registered with hooks.
func configureClient(ctx context.Context, cfg config.Config, hooks *server.ShutdownHooks) (*campus.Client, error) {
	// configure telemetry, including wrapping the outbound transport
	shutdownTelemetry, err := observe.Configure(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("telemetry bootstrap failed: %w", err)
	}
	hooks.AddContext("telemetry", shutdownTelemetry)

	transport := observe.HTTPTransport(
		configureHTTPTransport(cfg.API),
		cfg.Observe,
	)

	persister, err := session.NewPersisterFromConfig(ctx, cfg.Session)
	if err != nil {
		return nil, fmt.Errorf("session storage configuration failed: %w", err)
	}
	hooks.AddCloser("session storage", persister)

	store, err := session.Open(ctx, persister)
	if err != nil {
		return nil, err
	}

	memory, err := cache.NewMemory[[]byte](cfg.Cache.TTL, cfg.Cache.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("response cache configuration failed: %w", err)
	}
	responses := cache.NewTagged[[]byte](cache.NewInstrumented[[]byte](memory, "responses"))
	hooks.AddCloser("response cache", responses)

	metrics, err := observe.NewMetricsObserver(nil)
	if err != nil {
		return nil, fmt.Errorf("gateway metrics configuration failed: %w", err)
	}

	gw, err := gateway.New(store, gateway.Options{
		BaseURL:   cfg.API.URL,
		Timeout:   cfg.API.Timeout,
		Transport: transport,
		Observer:  gateway.Observers{audit.LogObserver{}, metrics},
	})
	if err != nil {
		return nil, err
	}

	return campus.New(gw, store, responses), nil
}

func configureLogging() {
	// Set global level to the minimum: allows the Open Telemetry logging to be
	// configured separately. However, it means that any logger that sets its
	// level will log as this effectively disables the global level.
	zerolog.SetGlobalLevel(zerolog.Level(-128))

	// standard output carries command results
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)

	if os.Getenv("ENV") == "development" {
		log.Logger = log.
			Output(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel)
	}

	zerolog.DefaultContextLogger = &log.Logger
}

func logBuildInfo() {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	ev := log.Debug()
	for _, v := range buildInfo.Settings {
		if strings.HasPrefix(v.Key, "vcs.") ||
			strings.HasPrefix(v.Key, "GO") ||
			v.Key == "CGO_ENABLED" {
			ev = ev.Str(v.Key, v.Value)
		}
	}

	ev.Msg("build information")
}

func configureHTTPTransport(cfg config.APIConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	transport.MaxIdleConns = cfg.OutgoingHTTPMaxIdleConns
	transport.MaxConnsPerHost = cfg.OutgoingHTTPMaxConnsPerHost

	return transport
}
