package logs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrick/logrotate/rotator"
)

// stdoutAndRotator implements io.Writer, writing to stdout and to a log
// rotator once the rotator has been initialized. Writes before
// InitRotators is called are dropped, matching the initiated guard in
// logger.logWriter.
type stdoutAndRotator struct {
	get func() *rotator.Rotator
}

func (w stdoutAndRotator) Write(p []byte) (int, error) {
	r := w.get()
	if r != nil {
		os.Stdout.Write(p)
		r.Write(p)
	}
	return len(p), nil
}

var (
	logRotator    *rotator.Rotator
	errLogRotator *rotator.Rotator

	backend = NewBackend([]*BackendWriter{
		NewAllLevelsBackendWriter(stdoutAndRotator{get: func() *rotator.Rotator { return logRotator }}),
		NewErrorBackendWriter(stdoutAndRotator{get: func() *rotator.Rotator { return errLogRotator }}),
	})
)

// Subsystem tags, one per pipeline stage.
const (
	TagDistributor = "DIST"
	TagWorker      = "WORK"
	TagWriter      = "WRIT"
	TagPause       = "PAUS"
	TagSupervisor  = "SUPV"
	TagRPCClient   = "RPCC"
	TagClassifier  = "CLSF"
	TagStore       = "STOR"
	TagConfig      = "CNFG"
	TagOperator    = "OPER"
)

var subsystemLoggers = map[string]*Logger{
	TagDistributor: backend.Logger(TagDistributor),
	TagWorker:      backend.Logger(TagWorker),
	TagWriter:      backend.Logger(TagWriter),
	TagPause:       backend.Logger(TagPause),
	TagSupervisor:  backend.Logger(TagSupervisor),
	TagRPCClient:   backend.Logger(TagRPCClient),
	TagClassifier:  backend.Logger(TagClassifier),
	TagStore:       backend.Logger(TagStore),
	TagConfig:      backend.Logger(TagConfig),
	TagOperator:    backend.Logger(TagOperator),
}

// Get returns the Logger for a subsystem tag, creating one at LevelInfo if
// the tag is not among the fixed set above.
func Get(tag string) *Logger {
	if l, ok := subsystemLoggers[tag]; ok {
		return l
	}
	l := backend.Logger(tag)
	subsystemLoggers[tag] = l
	return l
}

// SharedBackend returns the shared backend so Close can be deferred at shutdown.
func SharedBackend() *Backend {
	return backend
}

// InitRotators opens the rotating log files. Must be called once, early in
// main, before any logger is used for output to actually reach disk.
func InitRotators(logFile, errLogFile string) error {
	var err error
	logRotator, err = newRotator(logFile)
	if err != nil {
		return err
	}
	errLogRotator, err = newRotator(errLogFile)
	if err != nil {
		return err
	}
	return nil
}

func newRotator(path string) (*rotator.Rotator, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(path, 10*1024, false, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to create file rotator: %w", err)
	}
	return r, nil
}

// SetLevel sets the log level for a single known subsystem tag.
func SetLevel(tag, levelName string) {
	l, ok := subsystemLoggers[tag]
	if !ok {
		return
	}
	level, _ := LevelFromString(levelName)
	l.SetLevel(level)
}

// SetAllLevels sets the log level across every known subsystem.
func SetAllLevels(levelName string) {
	level, _ := LevelFromString(levelName)
	for _, l := range subsystemLoggers {
		l.SetLevel(level)
	}
}
