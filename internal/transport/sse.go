package transport

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bruno-portfolio/basismind/internal/observ"
)

// SSEHandler serves the hub as an event stream, resuming from Last-Event-ID.
type SSEHandler struct {
	Hub       *Hub
	Heartbeat time.Duration
}

func (s SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	// the stream outlives the server write timeout
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("last_event_id")
	}
	events, replay, cancel := s.Hub.Subscribe(lastID)
	defer cancel()
	observ.IncCounter("sse_connections_total", nil)
	observ.SetGauge("sse_subscribers", float64(s.Hub.Subscribers()), nil)
	defer func() { observ.SetGauge("sse_subscribers", float64(s.Hub.Subscribers()-1), nil) }()

	for _, ev := range replay {
		if err := writeEvent(w, ev); err != nil {
			return
		}
	}
	// an initial comment opens the stream for clients waiting on headers
	if _, err := io.WriteString(w, ":ok\n\n"); err != nil {
		return
	}
	flusher.Flush()

	hb := s.Heartbeat
	if hb <= 0 {
		hb = 15 * time.Second
	}
	ticker := time.NewTicker(hb)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ":ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-events:
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev EventEnvelope) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}
