// Package alerts routes desk alerts to the log, a journal file and Slack.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bruno-portfolio/basismind/internal/observ"
	"github.com/bruno-portfolio/basismind/internal/store"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return "info"
	}
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

// ParseLevel accepts info, warning or critical.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "critical":
		return LevelCritical, nil
	}
	return LevelInfo, fmt.Errorf("unknown alert level %q", s)
}

// Alert is one notification. Key identifies the subject for deduplication.
type Alert struct {
	Level     Level          `json:"level"`
	Source    string         `json:"source"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Key       string         `json:"key"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Handler delivers alerts to one destination.
type Handler interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// Manager fans alerts out to its handlers, dropping those below the minimum level.
type Manager struct {
	minLevel Level
	mu       sync.RWMutex
	handlers []Handler
	now      func() time.Time
}

func NewManager(minLevel Level, handlers ...Handler) *Manager {
	return &Manager{minLevel: minLevel, handlers: handlers, now: time.Now}
}

func (m *Manager) AddHandler(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Send delivers a to every handler and returns the joined handler errors.
func (m *Manager) Send(ctx context.Context, a Alert) error {
	if a.Level < m.minLevel {
		observ.IncCounter("alerts_filtered_total", map[string]string{"level": a.Level.String()})
		return nil
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = m.now().UTC()
	}
	m.mu.RLock()
	handlers := append([]Handler(nil), m.handlers...)
	m.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Send(ctx, a); err != nil {
			observ.Error("alert_send_failed", err, map[string]any{"handler": h.Name(), "key": a.Key})
			observ.IncCounter("alert_errors_total", map[string]string{"handler": h.Name()})
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))
			continue
		}
		observ.IncCounter("alerts_sent_total", map[string]string{"handler": h.Name()})
	}
	return errors.Join(errs...)
}

// SendAll sends each alert in order.
func (m *Manager) SendAll(ctx context.Context, as []Alert) error {
	var errs []error
	for _, a := range as {
		if err := m.Send(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogHandler writes alerts to the structured log.
type LogHandler struct{}

func (LogHandler) Name() string { return "log" }

func (LogHandler) Send(_ context.Context, a Alert) error {
	kv := map[string]any{
		"level":   a.Level.String(),
		"source":  a.Source,
		"title":   a.Title,
		"message": a.Message,
		"key":     a.Key,
	}
	if a.Level >= LevelWarning {
		observ.Warn("alert", kv)
	} else {
		observ.Log("alert", kv)
	}
	return nil
}

// FileHandler appends alerts to the journal.
type FileHandler struct {
	Journal *store.Journal
}

func (FileHandler) Name() string { return "file" }

func (h FileHandler) Send(_ context.Context, a Alert) error {
	return h.Journal.Append(store.EntryAlert, a.Key, a)
}
