package audit

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// EventCapturer is the part of *sentry.Hub the sink needs.
type EventCapturer interface {
	CaptureEvent(event *sentry.Event) *sentry.EventID
}

// SentrySink forwards security events to Sentry as warnings. Other events
// are ignored.
type SentrySink struct {
	hub EventCapturer
}

// NewSentrySink uses hub, or the current global hub when hub is nil.
func NewSentrySink(hub EventCapturer) *SentrySink {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentrySink{hub: hub}
}

func (s *SentrySink) Emit(_ context.Context, event Event) {
	if !event.Security() {
		return
	}

	se := sentry.NewEvent()
	se.Level = sentry.LevelWarning
	se.Message = "security event: " + event.Type
	se.Timestamp = event.Timestamp
	se.User = sentry.User{ID: event.UserID, IPAddress: event.IP}
	se.Tags = map[string]string{
		"event_type": event.Type,
		"event_id":   event.ID,
	}
	if event.SessionID != "" {
		se.Tags["session_id"] = event.SessionID
	}
	if event.Reason != "" {
		se.Tags["reason"] = event.Reason
	}
	for k, v := range event.Metadata {
		se.Tags[k] = v
	}

	s.hub.CaptureEvent(se)
}
