package ingest

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/narrator/internal/api"
)

// ── EventBus Publish/Subscribe ────────────────────────────────────────

func TestEventBusPublishSubscribe(t *testing.T) {
	t.Run("subscriber_receives_published_event", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(api.EventFilter{})
		defer cancel()

		eb.Publish(EventData{
			Type:    "render.started",
			Script:  "bedtime",
			Payload: map[string]string{"msg": "hello"},
		})

		select {
		case evt := <-ch:
			if evt.Type != "render.started" {
				t.Errorf("Type = %q, want render.started", evt.Type)
			}
			if evt.Script != "bedtime" {
				t.Errorf("Script = %q, want bedtime", evt.Script)
			}
			if evt.ID == "" {
				t.Error("expected non-empty event ID")
			}
			var payload map[string]string
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				t.Fatalf("Data is not valid JSON: %v", err)
			}
			if payload["msg"] != "hello" {
				t.Errorf("payload msg = %q, want hello", payload["msg"])
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	})

	t.Run("filtered_subscriber_misses_non_matching", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(api.EventFilter{Types: []string{"render.completed"}})
		defer cancel()

		eb.Publish(EventData{Type: "render.started", Payload: "x"})

		select {
		case evt := <-ch:
			t.Fatalf("should not receive event, got %+v", evt)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("cancel_stops_delivery", func(t *testing.T) {
		eb := NewEventBus(64)
		ch, cancel := eb.Subscribe(api.EventFilter{})
		if eb.SubscriberCount() != 1 {
			t.Fatalf("SubscriberCount = %d, want 1", eb.SubscriberCount())
		}
		cancel()
		if eb.SubscriberCount() != 0 {
			t.Fatalf("SubscriberCount = %d after cancel", eb.SubscriberCount())
		}

		eb.Publish(EventData{Type: "render.started", Payload: "x"})

		select {
		case <-ch:
			t.Fatal("should not receive event after cancel")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("multiple_subscribers", func(t *testing.T) {
		eb := NewEventBus(64)
		ch1, cancel1 := eb.Subscribe(api.EventFilter{})
		defer cancel1()
		ch2, cancel2 := eb.Subscribe(api.EventFilter{})
		defer cancel2()

		eb.Publish(EventData{Type: "clause.failed", Payload: "x"})

		for i, ch := range []<-chan api.SSEEvent{ch1, ch2} {
			select {
			case evt := <-ch:
				if evt.Type != "clause.failed" {
					t.Errorf("subscriber %d: Type = %q", i, evt.Type)
				}
			case <-time.After(time.Second):
				t.Fatalf("subscriber %d: timed out", i)
			}
		}
	})
}

// ── EventBus ReplaySince ─────────────────────────────────────────────

func TestEventBusReplaySince(t *testing.T) {
	t.Run("replay_all_when_empty_lastID", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: "render.started", Payload: "a"})
		eb.Publish(EventData{Type: "render.completed", Payload: "b"})

		events := eb.ReplaySince("", api.EventFilter{})
		if len(events) != 2 {
			t.Fatalf("got %d events, want 2", len(events))
		}
		if events[0].Type != "render.started" {
			t.Errorf("events out of order: %q first", events[0].Type)
		}
	})

	t.Run("replay_after_specific_id", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: "render.started", Payload: "a"})
		firstID := eb.ReplaySince("", api.EventFilter{})[0].ID
		eb.Publish(EventData{Type: "render.completed", Payload: "b"})

		events := eb.ReplaySince(firstID, api.EventFilter{})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (after first)", len(events))
		}
		if events[0].Type != "render.completed" {
			t.Errorf("Type = %q, want render.completed", events[0].Type)
		}
	})

	t.Run("replay_with_filter", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: "render.started", Script: "a", Payload: "a"})
		eb.Publish(EventData{Type: "render.started", Script: "b", Payload: "b"})

		events := eb.ReplaySince("", api.EventFilter{Scripts: []string{"b"}})
		if len(events) != 1 || events[0].Script != "b" {
			t.Fatalf("got %+v, want only script b", events)
		}
	})

	t.Run("unknown_lastID_replays_all", func(t *testing.T) {
		eb := NewEventBus(64)
		eb.Publish(EventData{Type: "render.started", Payload: "a"})

		events := eb.ReplaySince("nonexistent-id", api.EventFilter{})
		if len(events) != 1 {
			t.Fatalf("got %d events, want 1 (fallback replay all)", len(events))
		}
	})

	t.Run("ring_wraps", func(t *testing.T) {
		eb := NewEventBus(2)
		for _, typ := range []string{"a", "b", "c"} {
			eb.Publish(EventData{Type: typ, Payload: typ})
		}
		events := eb.ReplaySince("", api.EventFilter{})
		if len(events) != 2 || events[0].Type != "b" || events[1].Type != "c" {
			t.Fatalf("got %+v, want b then c", events)
		}
	})
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name   string
		event  api.SSEEvent
		filter api.EventFilter
		want   bool
	}{
		{"empty_filter_matches_all", api.SSEEvent{Type: "render.started", Script: "x"}, api.EventFilter{}, true},
		{"type_match", api.SSEEvent{Type: "render.started"}, api.EventFilter{Types: []string{"render.started"}}, true},
		{"type_no_match", api.SSEEvent{Type: "render.started"}, api.EventFilter{Types: []string{"clause.failed"}}, false},
		{"type_prefix", api.SSEEvent{Type: "render.completed"}, api.EventFilter{Types: []string{"render."}}, true},
		{"type_prefix_no_match", api.SSEEvent{Type: "clause.failed"}, api.EventFilter{Types: []string{"render."}}, false},
		{"type_with_spaces", api.SSEEvent{Type: "clause.failed"}, api.EventFilter{Types: []string{"render.started", " clause.failed"}}, true},
		{"script_match", api.SSEEvent{Type: "render.started", Script: "a"}, api.EventFilter{Scripts: []string{"a", "b"}}, true},
		{"script_no_match", api.SSEEvent{Type: "render.started", Script: "c"}, api.EventFilter{Scripts: []string{"a", "b"}}, false},
		{"scriptless_passes_through", api.SSEEvent{Type: "render.started"}, api.EventFilter{Scripts: []string{"a"}}, true},
		{"type_and_script", api.SSEEvent{Type: "clause.failed", Script: "a"}, api.EventFilter{Types: []string{"render."}, Scripts: []string{"a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(tt.event, tt.filter); got != tt.want {
				t.Errorf("matchesFilter = %v, want %v", got, tt.want)
			}
		})
	}
}

type recordingSink struct {
	events []string
	err    error
}

func (s *recordingSink) PublishEvent(eventType string, _ any) error {
	s.events = append(s.events, eventType)
	return s.err
}

func TestRenderEvents(t *testing.T) {
	eb := NewEventBus(8)
	ok := &recordingSink{}
	broken := &recordingSink{err: errors.New("broker down")}

	publish := eb.RenderEvents(zerolog.Nop(), ok, nil, broken)
	publish("render.started", map[string]any{"script": "bedtime", "clauses": 3})
	publish("render.completed", map[string]any{"script": "bedtime"})

	events := eb.ReplaySince("", api.EventFilter{Scripts: []string{"bedtime"}})
	if len(events) != 2 {
		t.Fatalf("bus has %d events, want 2", len(events))
	}
	var payload map[string]any
	if err := json.Unmarshal(events[0].Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["clauses"] != float64(3) {
		t.Errorf("payload = %v", payload)
	}
	if len(ok.events) != 2 || len(broken.events) != 2 {
		t.Errorf("sinks saw %v and %v", ok.events, broken.events)
	}
}

func TestWatcherStatusWithoutWatcher(t *testing.T) {
	if NewEventBus(1).WatcherStatus() != nil {
		t.Error("expected nil status without a watcher")
	}
}
