package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level orders log messages by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name such as "debug" or "WARN".
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// sink is the destination shared by a logger and its component children.
type sink struct {
	mu        sync.Mutex
	w         io.Writer
	file      *os.File
	path      string
	level     Level
	closeOnce sync.Once
	closeErr  error
}

// Logger writes component-tagged lines for one harness run.
// File loggers write to ~/.uiharness/logs/<run-id>-uiharness.log.
type Logger struct {
	runID     string
	component string
	sink      *sink
}

var (
	// runID identifies the current harness run across all loggers and reports
	runID     string
	runIDOnce sync.Once

	// logDir is the directory where log files are stored
	logDir string

	initOnce sync.Once
	initErr  error
)

func getRunID() string {
	runIDOnce.Do(func() {
		runID = uuid.New().String()
	})
	return runID
}

func initLogDirectory() error {
	initOnce.Do(func() {
		if logDir != "" {
			initErr = os.MkdirAll(logDir, 0750)
			return
		}

		homeDir, err := os.UserHomeDir()
		if err != nil {
			initErr = fmt.Errorf("failed to get home directory: %w", err)
			return
		}

		logDir = filepath.Join(homeDir, ".uiharness", "logs")
		if err := os.MkdirAll(logDir, 0750); err != nil {
			initErr = fmt.Errorf("failed to create log directory: %w", err)
		}
	})
	return initErr
}

// NewLogger opens the run's log file and returns a logger for component.
//
// When the log directory or file cannot be used it returns a logger that
// writes to stderr together with the error, so callers can warn and carry on.
func NewLogger(component string) (*Logger, error) {
	if err := initLogDirectory(); err != nil {
		return newFallbackLogger(component, err), err
	}

	id := getRunID()
	logPath := filepath.Join(logDir, fmt.Sprintf("%s-uiharness.log", id))

	// Append mode: several loggers in one run share the file
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err), err
	}

	return &Logger{
		runID:     id,
		component: component,
		sink:      &sink{w: file, file: file, path: logPath, level: LevelInfo},
	}, nil
}

// NewWriterLogger returns a logger that writes to w. Close does not close w.
func NewWriterLogger(component string, w io.Writer) *Logger {
	return &Logger{
		runID:     getRunID(),
		component: component,
		sink:      &sink{w: w, level: LevelInfo},
	}
}

func newFallbackLogger(component string, err error) *Logger {
	l := NewWriterLogger(component, os.Stderr)
	l.Warnf("failed to initialize file logging: %v", err)
	l.Warnf("falling back to stderr logging")
	return l
}

// Component returns a logger for another component that writes to the same
// destination. Closing either closes both.
func (l *Logger) Component(name string) *Logger {
	return &Logger{runID: l.runID, component: name, sink: l.sink}
}

// SetLevel drops messages below level for this logger and its components.
func (l *Logger) SetLevel(level Level) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.level = level
}

func (l *Logger) write(level Level, format string, v ...interface{}) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if level < l.sink.level {
		return
	}
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(l.sink.w, "[%s] [%s] [%s] %s\n", timestamp, l.component, level, fmt.Sprintf(format, v...))
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) { l.write(LevelDebug, format, v...) }

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) { l.write(LevelInfo, format, v...) }

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) { l.write(LevelWarn, format, v...) }

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) { l.write(LevelError, format, v...) }

// Writer returns the underlying destination.
func (l *Logger) Writer() io.Writer {
	return l.sink.w
}

// RunID returns the run identifier embedded in the log file name.
func (l *Logger) RunID() string {
	return l.runID
}

// LogPath returns the log file path, or "" for stderr and writer loggers.
func (l *Logger) LogPath() string {
	return l.sink.path
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	l.sink.closeOnce.Do(func() {
		l.sink.mu.Lock()
		defer l.sink.mu.Unlock()
		if l.sink.file != nil {
			l.sink.closeErr = l.sink.file.Close()
			l.sink.w = io.Discard
		}
	})
	return l.sink.closeErr
}

// RunID returns the identifier of the current run.
func RunID() string {
	return getRunID()
}

// SetDirectory overrides the log directory. It must be called before the
// first NewLogger.
func SetDirectory(dir string) {
	logDir = dir
}

// GetLogDirectory returns the directory where logs are stored
func GetLogDirectory() (string, error) {
	if err := initLogDirectory(); err != nil {
		return "", err
	}
	return logDir, nil
}
