package ingest

import (
	"github.com/rs/zerolog"
)

// EventSink receives render events alongside the SSE bus.
type EventSink interface {
	PublishEvent(eventType string, payload any) error
}

// RenderEvents returns a callback that publishes render events to the bus
// and to every sink. Sink failures are logged and never block a render.
func (eb *EventBus) RenderEvents(log zerolog.Logger, sinks ...EventSink) func(eventType string, payload map[string]any) {
	return func(eventType string, payload map[string]any) {
		scriptName, _ := payload["script"].(string)
		eb.Publish(EventData{Type: eventType, Script: scriptName, Payload: payload})
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.PublishEvent(eventType, payload); err != nil {
				log.Warn().Err(err).Str("event", eventType).Msg("event sink publish failed")
			}
		}
	}
}
