package audit

import (
	"github.com/rs/zerolog"
)

// OptionalEvent collects fields for a nested dictionary that is only written
// when at least one field was set. Empty values are skipped.
type OptionalEvent struct {
	ev       *zerolog.Event
	modified bool
}

func NewOptionalEvent(e *zerolog.Event) *OptionalEvent {
	return &OptionalEvent{ev: e}
}

func (oe *OptionalEvent) event() *zerolog.Event {
	if oe.ev == nil {
		oe.ev = zerolog.Dict()
		oe.modified = false
	}
	return oe.ev
}

// Set adds the collected fields to parent under key, if any were set.
func (oe *OptionalEvent) Set(parent *zerolog.Event, key string) bool {
	if oe.modified {
		parent.Dict(key, oe.event())
		return true
	}
	return false
}

func (oe *OptionalEvent) Str(key, val string) *OptionalEvent {
	if val == "" {
		return oe
	}
	oe.event().Str(key, val)
	oe.modified = true
	return oe
}

func (oe *OptionalEvent) Bool(key string, val bool) *OptionalEvent {
	oe.event().Bool(key, val)
	oe.modified = true
	return oe
}

func (oe *OptionalEvent) Int(key string, val int) *OptionalEvent {
	if val == 0 {
		return oe
	}
	oe.event().Int(key, val)
	oe.modified = true
	return oe
}
