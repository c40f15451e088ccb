package audit

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/smartcampus/campus-client/internal/gateway"
)

// LogObserver writes an audit record for every exchange with the campus API
// and for every token refresh. Failures are written at warning level.
type LogObserver struct{}

var _ gateway.Observer = LogObserver{}

func (LogObserver) Exchanged(ctx context.Context, ex gateway.Exchange) {
	entry := &Entry{
		RequestID: ex.RequestID,
		Method:    ex.Method,
		Path:      ex.URL,
		Status:    ex.Status,
		Duration:  ex.Duration,
		Replay:    ex.Replay,
	}
	if ex.Err != nil {
		entry.Error = ex.Err.Error()
	}

	level := Level
	if ex.Err != nil || ex.Status >= 400 {
		level = zerolog.WarnLevel
	}

	zerolog.Ctx(ctx).WithLevel(level).EmbedObject(entry).Msg("api request")
}

func (LogObserver) Refreshed(ctx context.Context, r gateway.RefreshOutcome) {
	logger := zerolog.Ctx(ctx)

	if r.Err != nil {
		logger.Warn().Err(r.Err).Dur("duration", r.Duration).Msg("token refresh failed, session cleared")
		return
	}

	logger.WithLevel(Level).Dur("duration", r.Duration).Msg("token refreshed")
}
