package bzperi

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Level is one of the eight log severities the host can hook a sink onto
// (spec.md §6.2 "log_register_<level>", design notes §9 "atomically
// swappable table of eight function slots").
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelNotice
	LevelWarning
	LevelError
	LevelCritical
	LevelFatal
	numLevels
)

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelNotice:
		return "notice"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sink receives a fully formatted log line for one level. Registering nil
// clears the slot and reverts that level to the default logrus-backed
// sink.
type Sink func(msg string)

var (
	sinkMu      sync.RWMutex
	sinks       [numLevels]Sink
	defaultLog  = newDefaultLogger()
)

func newDefaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.TraceLevel)
	return l
}

// RegisterSink installs sink for level, or clears it back to the default
// logger when sink is nil. This is the core of the host-facing
// "log_register_<level>" surface in spec.md §6.2.
func RegisterSink(level Level, sink Sink) {
	if level < 0 || level >= numLevels {
		return
	}
	sinkMu.Lock()
	sinks[level] = sink
	sinkMu.Unlock()
}

// ResetSinks clears every registered sink, reverting all levels to the
// default logger. Used by wait_until_stopped's "restores default ...
// log sinks" behavior (spec.md §4.G).
func ResetSinks() {
	sinkMu.Lock()
	for i := range sinks {
		sinks[i] = nil
	}
	sinkMu.Unlock()
}

// Logf formats and routes a message to level's sink, or to the default
// logrus logger if none is registered.
func Logf(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)

	sinkMu.RLock()
	sink := sinks[level]
	sinkMu.RUnlock()

	if sink != nil {
		sink(msg)
		return
	}

	entry := defaultLog.WithField("level", level.String())
	switch level {
	case LevelTrace:
		entry.Trace(msg)
	case LevelDebug:
		entry.Debug(msg)
	case LevelInfo, LevelNotice:
		entry.Info(msg)
	case LevelWarning:
		entry.Warn(msg)
	case LevelError, LevelCritical, LevelFatal:
		entry.Error(msg)
	default:
		entry.Info(msg)
	}
}
