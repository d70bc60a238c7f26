package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	Status      *StatusStore
	Metrics     http.Handler
	now         func() time.Time
}

// NewHandlers creates handlers with the given dependencies.
// If metrics is nil, GET /metrics returns 404.
func NewHandlers(broadcaster *StatusBroadcaster, status *StatusStore, metrics http.Handler) *Handlers {
	return &Handlers{
		Broadcaster: broadcaster,
		Status:      status,
		Metrics:     metrics,
		now:         time.Now,
	}
}

type statusResponse struct {
	Snapshot
	Summary map[string]string `json:"summary"`
}

// HandleStatus returns the latest snapshot as JSON, with a human readable
// summary alongside the raw values.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.Status.Get()
	if !ok {
		http.Error(w, "no status yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusResponse{Snapshot: snap, Summary: h.summary(snap)})
}

func (h *Handlers) summary(s Snapshot) map[string]string {
	now := h.now()
	out := map[string]string{
		"homing":   s.Tracking.Homing,
		"packets":  humanize.Comma(int64(s.Sensor.Packets)),
		"errors":   humanize.Comma(int64(s.Sensor.Errors)),
		"received": humanize.Bytes(s.Sensor.Bytes),
	}
	if s.Tracking.Homed {
		out["homed"] = humanize.RelTime(s.Tracking.HomedAt, now, "ago", "from now")
	} else {
		out["homed"] = "never"
	}
	if s.Attitude.Valid {
		out["last_packet"] = humanize.RelTime(s.Time.Add(-s.Sensor.Age), now, "ago", "from now")
	} else {
		out["last_packet"] = "never"
	}
	if s.Tracking.EmergencyStop {
		out["state"] = "emergency stop"
	} else if s.Tracking.Azimuth.Active || s.Tracking.Elevation.Active {
		out["state"] = "moving"
	} else {
		out["state"] = "idle"
	}
	return out
}

// HandleMetrics serves the Prometheus registry.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.Metrics == nil {
		http.NotFound(w, r)
		return
	}
	h.Metrics.ServeHTTP(w, r)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	// Reconnect quickly; a new client first gets the current state.
	w.Write([]byte(": connected\nretry: 3000\n\n"))
	if snap, ok := h.Status.Get(); ok {
		if data, err := json.Marshal(statusResponse{Snapshot: snap, Summary: h.summary(snap)}); err == nil {
			w.Write([]byte("event: status\ndata: " + string(data) + "\n\n"))
		}
	}
	flusher.Flush()

	// Heartbeat while idle
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
