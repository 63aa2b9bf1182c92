// Package transport streams decision events to dashboard clients over server-sent events.
package transport

import (
	"encoding/json"
	"strconv"
	"sync"
	"time"
)

// EventEnvelope wraps all wire events with metadata for ordering and resume.
type EventEnvelope struct {
	V       int             `json:"v"`      // envelope version
	Type    string          `json:"type"`   // decision, run, alert, book
	ID      string          `json:"id"`     // monotonic, used as Last-Event-ID
	TS      time.Time       `json:"ts_utc"` // server time the event was published
	Payload json.RawMessage `json:"payload"`
}

// Hub fans published events out to subscribers and keeps a bounded backlog for resume.
// Slow subscribers drop events instead of blocking publishers.
type Hub struct {
	mu      sync.RWMutex
	seq     uint64
	backlog []EventEnvelope
	max     int
	subs    map[int]chan EventEnvelope
	nextSub int
	dropped uint64
}

func NewHub(backlog int) *Hub {
	if backlog <= 0 {
		backlog = 100
	}
	return &Hub{max: backlog, subs: make(map[int]chan EventEnvelope)}
}

// Publish marshals payload and delivers it to every subscriber.
func (h *Hub) Publish(typ string, payload any) (EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return EventEnvelope{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	ev := EventEnvelope{V: 1, Type: typ, ID: strconv.FormatUint(h.seq, 10), TS: time.Now().UTC(), Payload: raw}
	h.backlog = append(h.backlog, ev)
	if len(h.backlog) > h.max {
		h.backlog = h.backlog[len(h.backlog)-h.max:]
	}
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped++
		}
	}
	return ev, nil
}

// Subscribe registers a subscriber. Events in the backlog after lastID are returned for replay;
// an empty or unknown lastID replays nothing. Call cancel to unsubscribe.
func (h *Hub) Subscribe(lastID string) (events <-chan EventEnvelope, replay []EventEnvelope, cancel func()) {
	ch := make(chan EventEnvelope, 64)
	h.mu.Lock()
	defer h.mu.Unlock()
	if lastID != "" {
		for i, ev := range h.backlog {
			if ev.ID == lastID {
				replay = append(replay, h.backlog[i+1:]...)
				break
			}
		}
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
	return ch, replay, cancel
}

// Recent returns up to n of the latest events, oldest first.
func (h *Hub) Recent(n int) []EventEnvelope {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.backlog) {
		n = len(h.backlog)
	}
	return append([]EventEnvelope(nil), h.backlog[len(h.backlog)-n:]...)
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) Dropped() uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
