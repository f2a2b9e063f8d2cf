package api

// LiveDataSource provides render events and watcher state to the API layer.
// The ingest package implements it; api owns the interface so there is no
// import cycle.
type LiveDataSource interface {
	// Subscribe returns a channel that receives SSE events matching the filter,
	// and a cancel function to unsubscribe.
	Subscribe(filter EventFilter) (<-chan SSEEvent, func())

	// ReplaySince returns buffered events since the given event ID (for Last-Event-ID recovery).
	ReplaySince(lastEventID string, filter EventFilter) []SSEEvent

	// WatcherStatus returns the script watcher status, or nil if not active.
	WatcherStatus() *WatcherStatusData
}

// WatcherStatusData represents the status of the script directory watcher.
type WatcherStatusData struct {
	Status       string `json:"status"` // "watching", "stopped"
	WatchDir     string `json:"watch_dir"`
	FilesQueued  int64  `json:"files_queued"`
	FilesSkipped int64  `json:"files_skipped"`
}

// EventFilter specifies which events an SSE subscriber wants to receive.
// Empty fields match everything.
type EventFilter struct {
	Types   []string
	Scripts []string
}

// SSEEvent represents a server-sent event ready for transmission.
type SSEEvent struct {
	ID        string `json:"event_id"`
	Type      string `json:"event_type"`
	Script    string `json:"script,omitempty"`
	Timestamp string `json:"timestamp"`
	Data      []byte `json:"-"` // pre-serialized JSON payload
}
