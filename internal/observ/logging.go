package observ

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel maps a config string to a Level. Unknown strings fall back to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

var (
	logMu    sync.Mutex
	logOut   io.Writer = os.Stdout
	minLevel           = LevelInfo
)

// SetOutput swaps the log writer and returns the previous one.
func SetOutput(w io.Writer) io.Writer {
	logMu.Lock()
	defer logMu.Unlock()
	prev := logOut
	logOut = w
	return prev
}

func SetLevel(l Level) {
	logMu.Lock()
	minLevel = l
	logMu.Unlock()
}

// Log writes one JSON line at info level.
func Log(event string, kv map[string]any) { emit(LevelInfo, event, kv) }

func Debug(event string, kv map[string]any) { emit(LevelDebug, event, kv) }

func Warn(event string, kv map[string]any) { emit(LevelWarn, event, kv) }

// Error logs err under the "error" key.
func Error(event string, err error, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	if err != nil {
		kv["error"] = err.Error()
	}
	emit(LevelError, event, kv)
}

func emit(l Level, event string, kv map[string]any) {
	logMu.Lock()
	defer logMu.Unlock()
	if l < minLevel {
		return
	}
	line := make(map[string]any, len(kv)+3)
	for k, v := range kv {
		line[k] = v
	}
	line["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	line["level"] = l.String()
	line["event"] = event
	b, err := json.Marshal(line)
	if err != nil {
		b, _ = json.Marshal(map[string]any{"ts": line["ts"], "level": "error", "event": "log_marshal_failed", "source_event": event})
	}
	fmt.Fprintln(logOut, string(b))
}
