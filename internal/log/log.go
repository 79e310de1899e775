// Package log provides structured, category-tagged logging for kai.
// Every agent instance writes to its own log file; lines are also fanned out
// on a broker so the CLI can echo them while a loop runs.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/kai/internal/pubsub"
)

// Level orders log lines by severity; lines below the logger's minimum are dropped.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a level name to a Level. Unknown names map to LevelInfo.
func ParseLevel(s string) Level {
	switch s {
	case "debug", "DEBUG":
		return LevelDebug
	case "warn", "WARN", "warning":
		return LevelWarn
	case "error", "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// Category tags a line with the subsystem that wrote it.
type Category string

const (
	CatQueue    Category = "queue"    // Directory queue claims and moves
	CatTrigger  Category = "trigger"  // Trigger evaluation
	CatLoop     Category = "loop"     // Scan loop state and item processing
	CatBackend  Category = "backend"  // External backend processes
	CatRegistry Category = "registry" // Agent type registration
	CatPlugin   Category = "plugin"   // Custom agent type discovery
	CatConfig   Category = "config"   // Configuration loading/saving
	CatStats    Category = "stats"    // Stats files and ledger
	CatWatcher  Category = "watcher"  // File watcher events
	CatPrompt   Category = "prompt"   // Prompt template lookup
	CatRoster   Category = "roster"   // Agent instance descriptors
	CatCache    Category = "cache"    // cache operations
)

// Logger is the process-wide sink installed by Init or InitWriter.
type Logger struct {
	mu     sync.Mutex
	file   *os.File
	out    io.Writer
	muted  bool
	floor  Level
	broker *pubsub.Broker[string]
}

var (
	installed   *Logger
	installedMu sync.RWMutex
)

// Init opens (or creates) the log file at path and makes it the global sink.
// The parent directory is created if needed. It returns a cleanup function
// that closes the file.
func Init(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: path derives from the instance log directory
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	l := &Logger{file: f, out: f, floor: LevelInfo, broker: pubsub.NewBroker[string]()}
	install(l)

	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.file != nil {
			_ = l.file.Close()
			l.file, l.out = nil, nil
		}
		l.broker.Close()
	}, nil
}

// InitWriter installs a logger that writes to w. Used by tests and by
// commands that have no instance directory.
func InitWriter(w io.Writer) {
	install(&Logger{out: w, floor: LevelDebug, broker: pubsub.NewBroker[string]()})
}

func install(l *Logger) {
	installedMu.Lock()
	prev := installed
	installed = l
	installedMu.Unlock()
	if prev != nil && prev.broker != nil {
		prev.broker.Close()
	}
}

func current() *Logger {
	installedMu.RLock()
	defer installedMu.RUnlock()
	return installed
}

func (l *Logger) update(fn func(*Logger)) {
	l.mu.Lock()
	fn(l)
	l.mu.Unlock()
}

// SetEnabled mutes or unmutes the installed logger.
func SetEnabled(enabled bool) {
	if l := current(); l != nil {
		l.update(func(l *Logger) { l.muted = !enabled })
	}
}

// SetMinLevel drops lines below level.
func SetMinLevel(level Level) {
	if l := current(); l != nil {
		l.update(func(l *Logger) { l.floor = level })
	}
}

func Debug(cat Category, msg string, fields ...any) { log(LevelDebug, cat, msg, fields...) }

func Info(cat Category, msg string, fields ...any) { log(LevelInfo, cat, msg, fields...) }

func Warn(cat Category, msg string, fields ...any) { log(LevelWarn, cat, msg, fields...) }

func Error(cat Category, msg string, fields ...any) { log(LevelError, cat, msg, fields...) }

// ErrorErr is Error with err appended as the "error" field.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	text := "<nil>"
	if err != nil {
		text = err.Error()
	}
	log(LevelError, cat, msg, append(fields, "error", text)...)
}

// Format renders one log line without the trailing newline.
// Format: 2025-12-06T10:45:00 [ERROR] [loop] message key=value key2=value2
func Format(ts time.Time, level Level, cat Category, msg string, fields ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] [%s] %s", ts.Format("2006-01-02T15:04:05"), level, cat, msg)
	for i := 0; i < len(fields); i += 2 {
		if i+1 == len(fields) {
			fmt.Fprintf(&b, " %v=<missing>", fields[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	return b.String()
}

func log(level Level, cat Category, msg string, fields ...any) {
	l := current()
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.muted || level < l.floor {
		return
	}

	entry := Format(time.Now(), level, cat, msg, fields...)
	if l.out != nil {
		_, _ = io.WriteString(l.out, entry+"\n")
	}
	if l.broker != nil {
		l.broker.Publish(pubsub.LogEvent, entry)
	}
}

// Listener receives formatted log lines.
type Listener = pubsub.Listener[string]

// NewListener subscribes to log lines for the lifetime of ctx.
// Returns nil when no logger is installed.
func NewListener(ctx context.Context) *Listener {
	l := current()
	if l == nil || l.broker == nil {
		return nil
	}
	return pubsub.NewListener[string](ctx, l.broker)
}
