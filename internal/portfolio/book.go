// Package portfolio keeps the desk's current physical and hedge position on disk.
package portfolio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bruno-portfolio/basismind/internal/decision"
)

// Snapshot is the persisted book with a monotonic version.
type Snapshot struct {
	Version   int64              `json:"version"`    // incremented on every save
	UpdatedAt string             `json:"updated_at"` // RFC3339
	UpdatedBy string             `json:"updated_by,omitempty"`
	Book      decision.BookState `json:"book"`
}

// Manager handles book persistence. Reads are served from memory.
type Manager struct {
	filePath string
	state    Snapshot
	mu       sync.RWMutex
}

// NewManager creates a manager whose book starts at defaults until Load finds a file.
func NewManager(filePath string, defaults decision.BookState) *Manager {
	return &Manager{
		filePath: filePath,
		state:    Snapshot{Book: defaults},
	}
}

// Load reads the snapshot from disk, writing the default book if the file doesn't exist.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			if err := decision.ValidateBook(m.state.Book); err != nil {
				return fmt.Errorf("default book: %w", err)
			}
			m.state.UpdatedBy = "default"
			return m.saveUnsafe()
		}
		return fmt.Errorf("failed to read book state: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to unmarshal book state: %w", err)
	}
	if err := decision.ValidateBook(snap.Book); err != nil {
		return fmt.Errorf("book state %s: %w", m.filePath, err)
	}
	m.state = snap
	return nil
}

// saveUnsafe saves without acquiring the lock.
func (m *Manager) saveUnsafe() error {
	m.state.Version++
	m.state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal book state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create book dir: %w", err)
	}

	// Atomic write using temp file + rename
	tempPath := m.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp book state: %w", err)
	}
	if err := os.Rename(tempPath, m.filePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename book state: %w", err)
	}
	return nil
}

// Book returns the current book.
func (m *Manager) Book() decision.BookState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Book
}

func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Update validates and persists a new book. On error the previous book is kept.
func (m *Manager) Update(b decision.BookState, by string) (Snapshot, error) {
	return m.modify(func(decision.BookState) decision.BookState { return b }, by)
}

// ApplyHedge moves the current hedge by delta percentage points, clamped to [0, 100].
// The desk calls this after executing a hedge recommendation.
func (m *Manager) ApplyHedge(delta float64, by string) (Snapshot, error) {
	return m.modify(func(b decision.BookState) decision.BookState {
		b.HedgeCurrentPct = min(100, max(0, b.HedgeCurrentPct+delta))
		return b
	}, by)
}

// ApplyPhysical moves the physical exposure by delta percentage points.
func (m *Manager) ApplyPhysical(delta float64, by string) (Snapshot, error) {
	return m.modify(func(b decision.BookState) decision.BookState {
		b.PhysicalExposurePct += delta
		return b
	}, by)
}

// modify reads, changes, validates and saves the book under one write lock.
func (m *Manager) modify(fn func(decision.BookState) decision.BookState, by string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := fn(m.state.Book)
	if err := decision.ValidateBook(b); err != nil {
		return Snapshot{}, err
	}
	prev := m.state
	m.state.Book = b
	m.state.UpdatedBy = by
	if err := m.saveUnsafe(); err != nil {
		m.state = prev
		return Snapshot{}, err
	}
	return m.state, nil
}
