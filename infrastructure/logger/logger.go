// Package logger provides the ambient per-subsystem logging backend shared
// by every pipeline stage and store, grounded on kaspad's own
// infrastructure/logger pattern: a named backend per subsystem, fronted by
// jrick/logrotate for file rotation, with leveled Infof/Warnf/Errorf/Debugf
// methods.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/jrick/logrotate/rotator"
)

// Level is a logging verbosity level.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelOff
)

var backendMu sync.RWMutex
var backendOnce sync.Once
var backendWriter io.Writer = os.Stdout
var backendLevel = LevelInfo

// dynamicWriter forwards to whatever backendWriter currently is, rather than
// whatever it was at construction time. Every subsystem logger is a package
// level var, so it's built at package-init, before main ever gets a chance
// to call InitBackend; writing through this indirection instead of a
// snapshot of backendWriter is what lets InitBackend's rotating file writer
// actually reach logs emitted by those already-constructed subsystems.
type dynamicWriter struct{}

func (dynamicWriter) Write(p []byte) (int, error) {
	backendMu.RLock()
	w := backendWriter
	backendMu.RUnlock()
	return w.Write(p)
}

// InitBackend wires the shared rotating file writer used by every
// subsystem logger. Safe to call once at process startup; subsequent calls
// are no-ops, matching kaspad's single global log backend.
func InitBackend(logFile string, level Level) error {
	var initErr error
	backendOnce.Do(func() {
		backendLevel = level
		if logFile == "" {
			return
		}
		r, err := rotator.New(logFile, 10*1024, false, 8)
		if err != nil {
			initErr = err
			return
		}
		backendMu.Lock()
		backendWriter = io.MultiWriter(os.Stdout, r)
		backendMu.Unlock()
	})
	return initErr
}

// Logger is a named subsystem logger, e.g. the one each of headerprocessor,
// bodyprocessor, virtualprocessor and reachabilitymanager instantiate at
// package init.
type Logger struct {
	subsystem string
	std       *log.Logger
}

// NewSubsystem returns a Logger tagged with the given subsystem name. Its
// underlying writer is dynamicWriter, not a snapshot of backendWriter, so a
// subsystem logger built before InitBackend runs still picks up the
// rotating file writer once InitBackend does run.
func NewSubsystem(subsystem string) *Logger {
	return &Logger{subsystem: subsystem, std: log.New(dynamicWriter{}, "", log.LstdFlags|log.Lmicroseconds)}
}

func (l *Logger) logf(level Level, levelTag, format string, args ...interface{}) {
	if level < backendLevel {
		return
	}
	l.std.Printf("[%s] %s: %s", levelTag, l.subsystem, fmt.Sprintf(format, args...))
}

func (l *Logger) Tracef(format string, args ...interface{}) { l.logf(LevelTrace, "TRC", format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(LevelDebug, "DBG", format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.logf(LevelInfo, "INF", format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.logf(LevelWarn, "WRN", format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(LevelError, "ERR", format, args...) }
