// Package logger is the leveled logger shared by the robots, the store and
// the API. Levels are off, normal (info and above) and verbose (debug).
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

// Level controls how much is written
type Level int

const (
	LevelOff Level = iota
	LevelNormal
	LevelVerbose
)

// ParseLevel maps a config value to a level. Empty means normal.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "quiet":
		return LevelOff, nil
	case "", "normal", "info":
		return LevelNormal, nil
	case "verbose", "debug":
		return LevelVerbose, nil
	}
	return LevelNormal, fmt.Errorf("unknown log level %q", s)
}

func (l Level) String() string {
	switch l {
	case LevelOff:
		return "off"
	case LevelVerbose:
		return "verbose"
	default:
		return "normal"
	}
}

type sink struct {
	mu    sync.RWMutex
	level Level
	out   *log.Logger
}

// Logger writes leveled lines with an optional component prefix. Loggers
// derived with With share level and output with their parent.
type Logger struct {
	sink   *sink
	prefix string
}

// New creates a logger writing to out, or os.Stderr when out is nil
func New(level Level, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{sink: &sink{
		level: level,
		out:   log.New(out, "", log.LstdFlags|log.Lmicroseconds),
	}}
}

// Discard returns a logger that writes nothing
func Discard() *Logger {
	return New(LevelOff, io.Discard)
}

// With returns a logger that tags every line with component
func (l *Logger) With(component string) *Logger {
	prefix := component
	if l.prefix != "" {
		prefix = l.prefix + "/" + component
	}
	return &Logger{sink: l.sink, prefix: prefix}
}

// SetLevel changes the level for this logger and every logger derived from it
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

// GetLevel returns the current level
func (l *Logger) GetLevel() Level {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	return l.sink.level
}

// Debug logs in verbose mode only
func (l *Logger) Debug(format string, args ...any) {
	l.write(LevelVerbose, "DBG", format, args...)
}

// Info logs an informational line
func (l *Logger) Info(format string, args ...any) {
	l.write(LevelNormal, "INF", format, args...)
}

// Warn logs a recoverable problem
func (l *Logger) Warn(format string, args ...any) {
	l.write(LevelNormal, "WRN", format, args...)
}

// Error logs a failure
func (l *Logger) Error(format string, args ...any) {
	l.write(LevelNormal, "ERR", format, args...)
}

func (l *Logger) write(min Level, tag, format string, args ...any) {
	l.sink.mu.RLock()
	defer l.sink.mu.RUnlock()
	if l.sink.level < min {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if l.prefix != "" {
		msg = "[" + l.prefix + "] " + msg
	}
	l.sink.out.Output(3, "["+tag+"] "+msg)
}
