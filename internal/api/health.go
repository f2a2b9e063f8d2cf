package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/snarg/narrator/internal/render"
)

type HealthResponse struct {
	Status        string             `json:"status"`
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Checks        map[string]string  `json:"checks"`
	Queue         *render.QueueStats `json:"render_queue,omitempty"`
	Watcher       *WatcherStatusData `json:"script_watcher,omitempty"`
}

// ConnectionStatus is satisfied by the MQTT client.
type ConnectionStatus interface {
	IsConnected() bool
}

// StretchInfo describes the configured time-stretch tool.
type StretchInfo struct {
	Backend   string
	Binary    string
	Available func(binary string) bool
}

type HealthHandler struct {
	queue     RenderQueue
	mqtt      ConnectionStatus
	live      LiveDataSource
	stretch   StretchInfo
	version   string
	startTime time.Time
}

func NewHealthHandler(queue RenderQueue, mqtt ConnectionStatus, live LiveDataSource, stretch StretchInfo, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		queue:     queue,
		mqtt:      mqtt,
		live:      live,
		stretch:   stretch,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"
	httpStatus := http.StatusOK
	degrade := func() {
		if status == "healthy" {
			status = "degraded"
		}
	}

	resp := HealthResponse{Version: h.version}

	// Stretch tool: renders cannot run without it
	switch {
	case h.stretch.Binary == "":
		checks["stretch"] = "not_configured"
	case h.stretch.Available == nil || h.stretch.Available(h.stretch.Binary):
		checks["stretch"] = "ok"
	default:
		checks["stretch"] = "missing"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	// Render queue
	if h.queue != nil {
		stats := h.queue.Stats()
		resp.Queue = &stats
		checks["render_queue"] = "ok"
	} else {
		checks["render_queue"] = "not_configured"
	}

	// MQTT check
	if h.mqtt != nil {
		if h.mqtt.IsConnected() {
			checks["mqtt"] = "ok"
		} else {
			checks["mqtt"] = "disconnected"
			degrade()
		}
	} else {
		checks["mqtt"] = "not_configured"
	}

	// Script watcher check
	checks["script_watcher"] = "not_configured"
	if h.live != nil {
		if ws := h.live.WatcherStatus(); ws != nil {
			checks["script_watcher"] = ws.Status
			resp.Watcher = ws
			if ws.Status == "stopped" {
				degrade()
			}
		}
	}

	resp.Status = status
	resp.UptimeSeconds = int64(time.Since(h.startTime).Seconds())
	resp.Checks = checks

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(resp)
}
