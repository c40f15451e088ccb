// Package audit writes one structured log record per API request: on the
// client for every exchange with the campus API, and on the mock server for
// every request it receives.
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/rs/zerolog"
)

// Level is the level at which audit records are written.
const Level = zerolog.InfoLevel

// Entry is the audit record of a single request.
type Entry struct {
	RequestID string
	Method    string
	Path      string
	Status    int
	SourceIP  string
	UserAgent string
	Duration  time.Duration
	Replay    bool

	Authorized  bool
	AuthSubject string

	Error string
}

func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	request := zerolog.Dict().
		Str("method", e.Method).
		Str("path", e.Path).
		Int("status", e.Status)

	optional := NewOptionalEvent(request)
	optional.
		Str("requestID", e.RequestID).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent).
		Int("durationMs", int(e.Duration.Milliseconds()))
	if e.Replay {
		optional.Bool("replay", true)
	}
	ev.Dict("request", request)

	auth := NewOptionalEvent(nil)
	if e.Authorized {
		auth.Bool("authorized", true)
	}
	auth.Str("subject", e.AuthSubject)
	auth.Set(ev, "authorization")

	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

// Begin captures the details of the incoming request.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.UserAgent = r.UserAgent()
	e.RequestID = r.Header.Get("X-Request-ID")

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		e.SourceIP = host
	} else {
		e.SourceIP = r.RemoteAddr
	}
}

// End returns a function that writes the entry to the context logger.
func (e *Entry) End(ctx context.Context) func() {
	return func() {
		if e.Status == 0 {
			e.Status = http.StatusOK
		}
		zerolog.Ctx(ctx).WithLevel(Level).EmbedObject(e).Msg("audit")
	}
}

type entryKey struct{}

// Context returns the audit entry of ctx, adding a new one when absent.
func Context(ctx context.Context) (context.Context, *Entry) {
	if e, ok := ctx.Value(entryKey{}).(*Entry); ok {
		return ctx, e
	}

	e := &Entry{}
	return context.WithValue(ctx, entryKey{}, e), e
}

// Log returns the audit entry of ctx. Changes made to an entry from a context
// without one are discarded.
func Log(ctx context.Context) *Entry {
	_, e := Context(ctx)
	return e
}

// Middleware writes an audit record for every request, including requests
// whose handler panics.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())

			entry.Begin(r)
			start := time.Now()

			defer func() {
				if rec := recover(); rec != nil {
					if entry.Error != "" {
						entry.Error += "; "
					}
					entry.Error += fmt.Sprintf("panic: %v", rec)
					entry.Status = http.StatusInternalServerError
					entry.Duration = time.Since(start)
					entry.End(ctx)()
					panic(rec)
				}
			}()

			m := httpsnoop.CaptureMetricsFn(w, func(ww http.ResponseWriter) {
				next.ServeHTTP(ww, r.WithContext(ctx))
			})

			entry.Status = m.Code
			entry.Duration = m.Duration
			entry.End(ctx)()
		})
	}
}
