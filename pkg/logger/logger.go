// Package logger is a small leveled logger writing one timestamped line per
// message.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelNames = map[Level]string{
	DEBUG: "DEBUG",
	INFO:  "INFO",
	WARN:  "WARN",
	ERROR: "ERROR",
}

func (l Level) String() string {
	if s, ok := levelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel accepts a level name in any case.
func ParseLevel(s string) (Level, error) {
	for l, name := range levelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return l, nil
		}
	}
	return INFO, fmt.Errorf("unknown log level %q", s)
}

type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	prefix string
}

// The CLI writes images to stdout, so logs go to stderr.
var defaultLogger = &Logger{
	out:   os.Stderr,
	level: INFO,
}

func New(out io.Writer, level Level) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		out:   out,
		level: level,
	}
}

// WithPrefix returns a logger sharing l's output and level that tags every
// line with prefix.
func (l *Logger) WithPrefix(prefix string) *Logger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &Logger{out: l.out, level: l.level, prefix: prefix}
}

func SetLevel(level Level) {
	defaultLogger.mu.Lock()
	defaultLogger.level = level
	defaultLogger.mu.Unlock()
}

func SetOutput(w io.Writer) {
	defaultLogger.mu.Lock()
	defaultLogger.out = w
	defaultLogger.mu.Unlock()
}

// Default returns the package-level logger.
func Default() *Logger {
	return defaultLogger
}

func (l *Logger) log(level Level, format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	msg := fmt.Sprintf(format, v...)
	if l.prefix != "" {
		msg = l.prefix + ": " + msg
	}
	line := fmt.Sprintf("[%s] %s: %s\n", timestamp, level, msg)
	_, _ = io.WriteString(l.out, line)
}

func (l *Logger) Debug(format string, v ...any) {
	l.log(DEBUG, format, v...)
}

func (l *Logger) Info(format string, v ...any) {
	l.log(INFO, format, v...)
}

func (l *Logger) Warn(format string, v ...any) {
	l.log(WARN, format, v...)
}

func (l *Logger) Error(format string, v ...any) {
	l.log(ERROR, format, v...)
}

// Global functions
func Debug(format string, v ...any) {
	defaultLogger.log(DEBUG, format, v...)
}

func Info(format string, v ...any) {
	defaultLogger.log(INFO, format, v...)
}

func Warn(format string, v ...any) {
	defaultLogger.log(WARN, format, v...)
}

func Error(format string, v ...any) {
	defaultLogger.log(ERROR, format, v...)
}

// Init routes the standard library logger (net/http uses it) through the
// default output.
func Init() {
	defaultLogger.mu.Lock()
	out := defaultLogger.out
	defaultLogger.mu.Unlock()
	log.SetOutput(out)
	log.SetFlags(0)
}
