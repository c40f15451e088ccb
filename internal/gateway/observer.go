package gateway

import (
	"context"
	"time"
)

// Exchange describes one request sent to the remote service.
type Exchange struct {
	RequestID string
	Method    string
	URL       string
	// Replay is true for the single re-send that follows a token refresh.
	Replay   bool
	Duration time.Duration

	// Status is set when a response was received.
	Status int
	// Err is set when no response was received.
	Err error
}

// RefreshOutcome describes the end of a token refresh.
type RefreshOutcome struct {
	Duration time.Duration
	// Err is nil when the Session received a new access token.
	Err error
}

// Observer is notified of gateway activity. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	Exchanged(ctx context.Context, e Exchange)
	Refreshed(ctx context.Context, r RefreshOutcome)
}

// Observers fans events out to each observer in order.
type Observers []Observer

func (o Observers) Exchanged(ctx context.Context, e Exchange) {
	for _, obs := range o {
		obs.Exchanged(ctx, e)
	}
}

func (o Observers) Refreshed(ctx context.Context, r RefreshOutcome) {
	for _, obs := range o {
		obs.Refreshed(ctx, r)
	}
}

type nopObserver struct{}

func (nopObserver) Exchanged(context.Context, Exchange)      {}
func (nopObserver) Refreshed(context.Context, RefreshOutcome) {}
