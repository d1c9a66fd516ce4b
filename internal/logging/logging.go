package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Console levels layered on top of charmbracelet/log. Both sit between Info
// and Warn so a Warn threshold still hides them.
const (
	SuccessLevel = log.InfoLevel + 1
	PatternLevel = log.InfoLevel + 2
)

const logFileName = "strudel-watch.log"

type AppLogger struct {
	logger *log.Logger
	file   *log.Logger // set only in debug mode
	debug  bool
}

var (
	defaultLogger *AppLogger
	once          sync.Once
)

// GetDefault returns the default logger instance (singleton-like for convenience)
func GetDefault() *AppLogger {
	once.Do(func() {
		defaultLogger = NewAppLogger()
	})
	return defaultLogger
}

// Package-level convenience functions for quick logging
func Info(msg string, keyvals ...interface{}) {
	GetDefault().Info(msg, keyvals...)
}

func Warn(msg string, keyvals ...interface{}) {
	GetDefault().Warn(msg, keyvals...)
}

func Error(msg string, keyvals ...interface{}) {
	GetDefault().Error(msg, keyvals...)
}

func Debug(msg string, keyvals ...interface{}) {
	GetDefault().Debug(msg, keyvals...)
}

// ConsoleStyles renders each level as a coloured one-character symbol instead
// of the usual INFO/WARN column.
func ConsoleStyles() *log.Styles {
	styles := log.DefaultStyles()
	symbol := func(s, color string) lipgloss.Style {
		return lipgloss.NewStyle().SetString(s).Bold(true).Foreground(lipgloss.Color(color))
	}
	styles.Levels[log.DebugLevel] = symbol("·", "8")
	styles.Levels[log.InfoLevel] = symbol("ℹ", "4")
	styles.Levels[SuccessLevel] = symbol("✓", "2")
	styles.Levels[PatternLevel] = symbol("♪", "6")
	styles.Levels[log.WarnLevel] = symbol("⚠", "3")
	styles.Levels[log.ErrorLevel] = symbol("✗", "1")
	styles.Levels[log.FatalLevel] = symbol("✗", "9")
	return styles
}

func NewAppLogger() *AppLogger {
	debug := os.Getenv("DEBUG") != ""

	logger := NewConsole(os.Stderr)
	al := &AppLogger{logger: logger, debug: debug}

	if debug {
		logger.SetLevel(log.DebugLevel)

		// Development: mirror everything to a log file, cleared on each run
		cwd, err := os.Getwd()
		if err != nil {
			panic(fmt.Sprintf("Failed to get current working directory: %v", err))
		}

		logPath := filepath.Join(cwd, logFileName)

		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			panic(fmt.Sprintf("Failed to create debug log file: %v", err))
		}

		al.file = log.NewWithOptions(logFile, log.Options{
			ReportCaller:    true,
			CallerOffset:    2,
			ReportTimestamp: true,
			TimeFormat:      time.Kitchen,
			Prefix:          "strudel",
			Level:           log.DebugLevel,
		})
		al.file.SetStyles(ConsoleStyles())

		al.Debug("Debug logging enabled", "log_file", logPath)
	}

	return al
}

// NewConsole builds the user-facing console logger writing to w. Colour is
// dropped when NO_COLOR is set or w is not a terminal.
func NewConsole(w io.Writer) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: false,
		Level:           log.InfoLevel,
	})
	logger.SetStyles(ConsoleStyles())
	if !colorEnabled(w) {
		logger.SetColorProfile(termenv.Ascii)
	}
	return logger
}

func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

func (al *AppLogger) log(level log.Level, msg string, keyvals ...interface{}) {
	al.logger.Log(level, msg, keyvals...)
	if al.file != nil {
		al.file.Log(level, msg, keyvals...)
	}
}

// Log application events
func (al *AppLogger) Info(msg string, keyvals ...interface{}) {
	al.log(log.InfoLevel, msg, keyvals...)
}

func (al *AppLogger) Warn(msg string, keyvals ...interface{}) {
	al.log(log.WarnLevel, msg, keyvals...)
}

func (al *AppLogger) Error(msg string, keyvals ...interface{}) {
	al.log(log.ErrorLevel, msg, keyvals...)
}

// Success reports a completed step (✓).
func (al *AppLogger) Success(msg string, keyvals ...interface{}) {
	al.log(SuccessLevel, msg, keyvals...)
}

// Pattern reports pattern traffic towards the remote session (♪).
func (al *AppLogger) Pattern(msg string, keyvals ...interface{}) {
	al.log(PatternLevel, msg, keyvals...)
}

func (al *AppLogger) Debug(msg string, keyvals ...interface{}) {
	if al.debug {
		al.log(log.DebugLevel, msg, keyvals...)
	}
}

// SetQuiet limits the console to warnings and errors, e.g. while a spinner
// owns the terminal. Debug mode and the debug log file are unaffected.
func (al *AppLogger) SetQuiet(quiet bool) {
	switch {
	case al.debug:
		al.logger.SetLevel(log.DebugLevel)
	case quiet:
		al.logger.SetLevel(log.WarnLevel)
	default:
		al.logger.SetLevel(log.InfoLevel)
	}
}

// IsDebug reports whether debug logging is active.
func (al *AppLogger) IsDebug() bool {
	return al.debug
}

// Pretty print any object
func (al *AppLogger) DebugObject(name string, obj interface{}) {
	al.Debug("Object dump", "name", name, "object", fmt.Sprintf("%+v", obj))
}

// Log performance metrics
func (al *AppLogger) LogPerformance(operation string, start time.Time) {
	al.Debug("Performance",
		"operation", operation,
		"duration", time.Since(start),
	)
}

// Log state transitions for debugging
func (al *AppLogger) LogStateTransition(component, from, to string) {
	al.Debug("State transition",
		"component", component,
		"from", from,
		"to", to,
	)
}

// Testing Helper - NewTestLogger creates a logger that writes to a buffer for testing
func NewTestLogger() (*AppLogger, *SyncBuffer) {
	buf := &SyncBuffer{}

	logger := log.NewWithOptions(buf, log.Options{
		ReportTimestamp: false,
		ReportCaller:    false,
		Prefix:          "Test",
	})
	logger.SetLevel(log.DebugLevel)
	logger.SetStyles(ConsoleStyles())
	logger.SetColorProfile(termenv.Ascii)

	return &AppLogger{
		logger: logger,
		debug:  true,
	}, buf
}

// SyncBuffer lets loggers shared with background goroutines write to a
// buffer while tests read it.
type SyncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SyncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SyncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *SyncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}
