package server

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
)

type hookDefinition struct {
	name string
	fn   func(context.Context) error
}

// ShutdownHooks releases process resources when a command or server exits.
// Hooks run in reverse registration order, so a resource is released before
// anything it was built on (telemetry, registered first, flushes last).
// Execution continues past failing hooks.
type ShutdownHooks struct {
	hooks []hookDefinition
}

// AddContext registers a hook that receives the shutdown context. Nil hooks
// are ignored with a warning logged.
func (s *ShutdownHooks) AddContext(name string, hook func(context.Context) error) {
	if s.hooks == nil {
		s.hooks = make([]hookDefinition, 0, 5)
	}
	if hook == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	log.Debug().Str("hook", name).Msg("adding shutdown hook")
	s.hooks = append(s.hooks, hookDefinition{name: name, fn: hook})
}

// Add registers a hook that does not need the shutdown context.
func (s *ShutdownHooks) Add(name string, hook func() error) {
	if hook == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.AddContext(name, func(context.Context) error {
		return hook()
	})
}

// AddCloser registers the Close method of closer.
func (s *ShutdownHooks) AddCloser(name string, closer io.Closer) {
	if closer == nil {
		log.Warn().Str("hook", name).Msg("attempted to add nil shutdown hook; ignoring")
		return
	}

	s.Add(name, closer.Close)
}

// Execute runs the registered hooks, latest first, and returns every failure
// joined into one error.
func (s *ShutdownHooks) Execute(ctx context.Context) error {
	l := log.Ctx(ctx)

	var errs []error
	for i := len(s.hooks) - 1; i >= 0; i-- {
		hook := s.hooks[i]
		hookLog := l.With().Str("hook", hook.name).Logger()

		hookLog.Debug().Msg("shutdown started")
		if err := hook.fn(ctx); err != nil {
			hookLog.Warn().Err(err).Msg("shutdown failed")
			errs = append(errs, fmt.Errorf("%s: %w", hook.name, err))
		} else {
			hookLog.Debug().Msg("shutdown complete")
		}
	}

	s.hooks = nil

	return errors.Join(errs...)
}
