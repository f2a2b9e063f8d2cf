package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

const (
	// sseRetry is the reconnect delay suggested to EventSource clients.
	sseRetry     = 3 * time.Second
	sseKeepalive = 15 * time.Second
)

// EventsHandler streams render progress as server-sent events.
type EventsHandler struct {
	live      LiveDataSource
	keepalive time.Duration
}

func NewEventsHandler(live LiveDataSource) *EventsHandler {
	return &EventsHandler{live: live, keepalive: sseKeepalive}
}

// StreamEvents opens an SSE connection and pushes render events, optionally
// filtered by ?types= (exact type or dotted prefix) and ?scripts=. A client
// reconnecting with Last-Event-ID (or ?last_event_id=) first receives the
// buffered events it missed.
func (h *EventsHandler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	if h.live == nil {
		WriteError(w, http.StatusServiceUnavailable, "event streaming not available")
		return
	}
	rc := http.NewResponseController(w)

	filter := EventFilter{
		Types:   QueryStringList(r, "types"),
		Scripts: QueryStringList(r, "scripts"),
	}
	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID, _ = QueryString(r, "last_event_id")
	}

	// A render can run far longer than the server's write timeout.
	rc.SetWriteDeadline(time.Time{})

	hdr := w.Header()
	hdr.Set("Content-Type", "text/event-stream")
	hdr.Set("Cache-Control", "no-cache")
	hdr.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry: %d\n\n", sseRetry.Milliseconds())
	if lastID != "" {
		for _, e := range h.live.ReplaySince(lastID, filter) {
			writeEvent(w, e)
		}
	}
	if err := rc.Flush(); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("event stream cannot flush")
		return
	}

	// Subscribe after replay so the replayed IDs precede live ones.
	ch, cancel := h.live.Subscribe(filter)
	defer cancel()

	log := hlog.FromRequest(r).With().
		Strs("types", filter.Types).
		Strs("scripts", filter.Scripts).
		Logger()
	log.Info().Str("last_event_id", lastID).Msg("event stream opened")
	start := time.Now()
	sent := 0
	defer func() {
		log.Info().Int("sent", sent).Dur("open_ms", time.Since(start)).Msg("event stream closed")
	}()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, e)
			sent++
		case <-keepalive.C:
			io.WriteString(w, ": keepalive\n\n")
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeEvent(w io.Writer, e SSEEvent) {
	fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", e.ID, e.Type, e.Data)
}

// Routes registers event routes on the given router.
func (h *EventsHandler) Routes(r chi.Router) {
	r.Get("/events", h.StreamEvents)
}
