package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Journal entry types.
const (
	EntryDecision = "decision"
	EntryRun      = "run"
	EntryAlert    = "alert"
)

// JournalEntry is one line of the append-only decision journal.
type JournalEntry struct {
	Type  string          `json:"type"`
	Key   string          `json:"key"`
	Data  json.RawMessage `json:"data"`
	Event time.Time       `json:"event"`
}

// Journal appends JSON lines to a file. It is the audit trail of everything the pipeline
// decided and sent, independent of the database.
type Journal struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Journal{path: path, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Append writes one entry. key identifies the subject, e.g. the reference date.
func (j *Journal) Append(typ, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("journal: marshal %s: %w", typ, err)
	}
	line, err := json.Marshal(JournalEntry{Type: typ, Key: key, Data: raw, Event: j.now()})
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// Entries reads the journal, optionally filtered by type. Malformed lines are skipped.
func (j *Journal) Entries(typ string) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, err := os.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []JournalEntry
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if len(bytes.TrimSpace(sc.Bytes())) == 0 {
			continue
		}
		var e JournalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if typ != "" && e.Type != typ {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// HasRecent reports whether an entry of typ with key was written within window.
func (j *Journal) HasRecent(typ, key string, window time.Duration) (bool, error) {
	entries, err := j.Entries(typ)
	if err != nil {
		return false, err
	}
	cutoff := j.now().Add(-window)
	for _, e := range entries {
		if e.Key == key && !e.Event.Before(cutoff) {
			return true, nil
		}
	}
	return false, nil
}
