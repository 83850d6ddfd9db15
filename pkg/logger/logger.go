package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"
)

// Leveled logger shared by the gateway packages.
// Init(level) sets the process-wide threshold; Named(component) returns a
// scoped logger that prefixes every line with the component name.

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var (
	mu     sync.RWMutex
	logger *log.Logger = log.New(os.Stdout, "", 0)
	level  Level       = LevelInfo
)

// ParseLevel maps a textual level (case-insensitive) to a Level. Unknown input is Info.
func ParseLevel(l string) Level {
	switch strings.ToLower(strings.TrimSpace(l)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Init sets the global log level (debug, info, warn, error, fatal).
func Init(l string) {
	mu.Lock()
	defer mu.Unlock()
	level = ParseLevel(l)
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	}
	return "info"
}

// LevelString returns the current level as text.
func LevelString() string {
	mu.RLock()
	defer mu.RUnlock()
	return level.String()
}

func enabled(l Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	return l >= level
}

func output(l Level, component, format string, v ...interface{}) {
	if l != LevelFatal && !enabled(l) {
		return
	}
	var b strings.Builder
	b.WriteString(time.Now().Format(time.RFC3339))
	b.WriteString(" [")
	b.WriteString(strings.ToUpper(l.String()))
	b.WriteString("] ")
	if component != "" {
		b.WriteString(component)
		b.WriteString(": ")
	}
	b.WriteString(fmt.Sprintf(format, v...))
	logger.Print(b.String())
}

func Debugf(format string, v ...interface{}) { output(LevelDebug, "", format, v...) }
func Infof(format string, v ...interface{})  { output(LevelInfo, "", format, v...) }
func Warnf(format string, v ...interface{})  { output(LevelWarn, "", format, v...) }
func Errorf(format string, v ...interface{}) { output(LevelError, "", format, v...) }

func Fatalf(format string, v ...interface{}) {
	output(LevelFatal, "", format, v...)
	os.Exit(1)
}

func Debug(v string) { Debugf("%s", v) }
func Info(v string)  { Infof("%s", v) }
func Warn(v string)  { Warnf("%s", v) }
func Error(v string) { Errorf("%s", v) }

// Logger is a component-scoped view over the global logger.
// The zero value logs without a component prefix.
type Logger struct {
	component string
}

// Named returns a logger whose lines are prefixed with component.
func Named(component string) *Logger {
	return &Logger{component: component}
}

// With returns a child logger; the sub-component is appended with a dot.
func (l *Logger) With(sub string) *Logger {
	if l == nil || l.component == "" {
		return Named(sub)
	}
	return Named(l.component + "." + sub)
}

func (l *Logger) name() string {
	if l == nil {
		return ""
	}
	return l.component
}

func (l *Logger) Debugf(format string, v ...interface{}) { output(LevelDebug, l.name(), format, v...) }
func (l *Logger) Infof(format string, v ...interface{})  { output(LevelInfo, l.name(), format, v...) }
func (l *Logger) Warnf(format string, v ...interface{})  { output(LevelWarn, l.name(), format, v...) }
func (l *Logger) Errorf(format string, v ...interface{}) { output(LevelError, l.name(), format, v...) }
