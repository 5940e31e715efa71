package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	charmlog "github.com/charmbracelet/log"
)

var (
	root     *slog.Logger
	levelVar = new(slog.LevelVar)
	logFile  *os.File
	console  io.Writer
	mu       sync.Mutex
	initDone bool
)

// SetDebug enables or disables debug level logging
func SetDebug(enabled bool) {
	if enabled {
		levelVar.Set(slog.LevelDebug)
	} else {
		levelVar.Set(slog.LevelInfo)
	}
}

// SetConsole mirrors log records to w (typically stderr) in a human-readable
// form. Passing nil disables mirroring. Must be called before Init.
func SetConsole(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	console = w
}

// Init initializes the logger with a log file at path. If not called,
// loggers fall back to slog.Default().
func Init(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if initDone {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	logFile = f

	var handler slog.Handler = slog.NewTextHandler(f, &slog.HandlerOptions{Level: levelVar})
	if console != nil {
		handler = fanout{handler, newConsoleHandler(console)}
	}
	root = slog.New(handler)
	initDone = true

	root.Info("logger initialized", "path", path)
	return nil
}

// InitWriter initializes the logger to write text records to w. Used by
// tests and by commands that should not touch the log directory.
func InitWriter(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	root = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelVar}))
	initDone = true
}

func newConsoleHandler(w io.Writer) slog.Handler {
	l := charmlog.NewWithOptions(w, charmlog.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
		Prefix:          "gig",
	})
	if levelVar.Level() <= slog.LevelDebug {
		l.SetLevel(charmlog.DebugLevel)
	}
	return l
}

// Get returns the root logger instance.
func Get() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()

	if root == nil {
		return slog.Default()
	}
	return root
}

// WithSession returns a logger with the chat session ID attached.
//
// Example:
//
//	log := logger.WithSession(sess.ID())
//	log.Info("attachment evicted", "file", id)
//	// Output: level=INFO msg="attachment evicted" sessionID=5f0c… file=abc123
func WithSession(sessionID string) *slog.Logger {
	return Get().With("sessionID", sessionID)
}

// WithComponent returns a logger with the component name attached.
func WithComponent(component string) *slog.Logger {
	return Get().With("component", component)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Close closes the log file
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	root = nil
}

// Reset resets the logger state, allowing reinitialization.
// This is primarily for testing purposes.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	initDone = false
	console = nil
	root = nil
	levelVar = new(slog.LevelVar)
}
