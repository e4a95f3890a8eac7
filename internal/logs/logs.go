// Package logs implements a small leveled, subsystem-tagged logging backend
// in the shape of the logging layer used throughout the pipeline: one
// Backend fans writes out to any number of BackendWriters (stdout, rotating
// files), and per-subsystem Loggers each carry their own filter level.
package logs

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Level is a logging severity level.
type Level uint32

// Supported levels, lowest to highest severity.
const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCritical
	levelOff
)

var levelStrings = map[Level]string{
	LevelTrace:    "TRC",
	LevelDebug:    "DBG",
	LevelInfo:     "INF",
	LevelWarn:     "WRN",
	LevelError:    "ERR",
	LevelCritical: "CRT",
}

func (l Level) String() string {
	if s, ok := levelStrings[l]; ok {
		return s
	}
	return "UNK"
}

// LevelFromString parses a level name. It defaults to LevelInfo on an
// unrecognized string, mirroring the permissive parsing used by the
// subsystem-level flag handling this package is modeled on.
func LevelFromString(s string) (Level, bool) {
	switch strings.ToLower(s) {
	case "trace":
		return LevelTrace, true
	case "debug":
		return LevelDebug, true
	case "info":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error":
		return LevelError, true
	case "critical":
		return LevelCritical, true
	}
	return LevelInfo, false
}

// BackendWriter pairs an io.Writer with the minimum level it accepts.
type BackendWriter struct {
	w        io.Writer
	minLevel Level
}

// NewAllLevelsBackendWriter returns a BackendWriter that accepts every level.
func NewAllLevelsBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelTrace}
}

// NewErrorBackendWriter returns a BackendWriter that only accepts
// LevelError and above, for a secondary error-only log file.
func NewErrorBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelError}
}

// Backend is the shared logging sink for every subsystem Logger.
type Backend struct {
	mu      sync.Mutex
	writers []*BackendWriter
	closed  bool
}

// NewBackend constructs a Backend fanning out to the given writers.
func NewBackend(writers []*BackendWriter) *Backend {
	return &Backend{writers: writers}
}

// Logger returns a new Logger bound to this backend under the given
// subsystem tag, defaulting to LevelInfo.
func (b *Backend) Logger(tag string) *Logger {
	return &Logger{backend: b, tag: tag, level: LevelInfo}
}

func (b *Backend) write(level Level, line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, bw := range b.writers {
		if level < bw.minLevel {
			continue
		}
		fmt.Fprint(bw.w, line)
	}
}

// Close marks the backend closed; subsequent writes are dropped. Embedded
// rotators are closed by the caller that owns them (internal/logs does not
// own file handles, only the fan-out).
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Logger is a per-subsystem leveled logger sharing a Backend.
type Logger struct {
	backend *Backend
	tag     string

	mu    sync.RWMutex
	level Level
}

// SetLevel changes the minimum level this logger will emit.
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// Level returns the logger's current minimum level.
func (l *Logger) Level() Level {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.level
}

// Backend returns the shared backend, so callers can Close it on shutdown.
func (l *Logger) Backend() *Backend {
	return l.backend
}

func (l *Logger) log(level Level, format string, args ...interface{}) {
	if level < l.Level() {
		return
	}
	ts := time.Now().UTC().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("%s [%s] %s: %s\n", ts, level, l.tag, msg)
	l.backend.write(level, line)
}

// Tracef logs at LevelTrace.
func (l *Logger) Tracef(format string, args ...interface{}) { l.log(LevelTrace, format, args...) }

// Debugf logs at LevelDebug.
func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }

// Infof logs at LevelInfo.
func (l *Logger) Infof(format string, args ...interface{}) { l.log(LevelInfo, format, args...) }

// Warnf logs at LevelWarn.
func (l *Logger) Warnf(format string, args ...interface{}) { l.log(LevelWarn, format, args...) }

// Errorf logs at LevelError.
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, format, args...) }

// Criticalf logs at LevelCritical. Used for fatal/panic conditions just
// before process exit.
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.log(LevelCritical, format, args...)
}
