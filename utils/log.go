package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

var levelNames = [...]string{
	TRACE:    "TRACE",
	DEBUG:    "DEBUG",
	INFO:     "INFO",
	WARN:     "WARN",
	ERROR:    "ERROR",
	CRITICAL: "CRITICAL",
}

func (l LogLevel) String() string {
	if l < TRACE || l > CRITICAL {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a flag value to a LogLevel; unknown names fall back to INFO.
func ParseLevel(s string) LogLevel {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return WARN
	}
	for lvl, name := range levelNames {
		if name == s {
			return LogLevel(lvl)
		}
	}
	return INFO
}

// Logger writes timestamped, levelled lines to one writer. A nil *Logger
// discards everything, so components can run without one.
type Logger struct {
	mu       sync.Mutex
	minLevel LogLevel
	out      io.Writer
	file     *os.File // owned; synced after every line
}

// NewFileLogger appends to filePath, and copies every line to stdout when
// alsoStdout is set.
func NewFileLogger(filePath string, minLevel LogLevel, alsoStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	var out io.Writer = f
	if alsoStdout {
		out = io.MultiWriter(f, os.Stdout)
	}
	return &Logger{minLevel: minLevel, out: out, file: f}, nil
}

// NewWriterLogger logs to w only
func NewWriterLogger(w io.Writer, minLevel LogLevel) *Logger {
	return &Logger{minLevel: minLevel, out: w}
}

// Close closes the log file, if any. Later lines are dropped.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.out = nil, nil
	return err
}

func (l *Logger) SetMinLevel(level LogLevel) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// Enabled reports whether a message at level would be written
func (l *Logger) Enabled(level LogLevel) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out != nil && level >= l.minLevel
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil || level < l.minLevel {
		return
	}

	_, _ = fmt.Fprintf(l.out, "%s [%s] %s\n",
		time.Now().Format(time.RFC3339Nano), level, fmt.Sprintf(msg, args...))
	if l.file != nil {
		_ = l.file.Sync()
	}
}

func (l *Logger) Trace(msg string, args ...any)    { l.log(TRACE, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)    { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)     { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)     { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any)    { l.log(ERROR, msg, args...) }
func (l *Logger) Critical(msg string, args ...any) { l.log(CRITICAL, msg, args...) }
