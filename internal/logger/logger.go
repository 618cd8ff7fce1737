package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"camcontrol/internal/config"
)

// Level is the minimum severity a Logger writes.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

// ParseLevel maps LOG_LEVEL values onto a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s", s)
	}
}

// Logger provides leveled logging (debug/info/warning/error) to files and stdout/stderr.
type Logger struct {
	debugLog   *log.Logger
	infoLog    *log.Logger
	warningLog *log.Logger
	errorLog   *log.Logger
	level      Level
	logDir     string
	files      []*os.File
	mu         sync.Mutex
}

// NewLogger creates a Logger writing to stdout/stderr and to per-level files
// in the configured log directory.
func NewLogger(cfg *config.Config) (*Logger, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.LogDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	l := &Logger{
		level:  level,
		logDir: cfg.LogDirectory,
	}

	if err := l.setupLoggers(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// NewWriterLogger logs every level to w only. Used by tools and tests.
func NewWriterLogger(w io.Writer, level Level) *Logger {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	return &Logger{
		debugLog:   log.New(w, "DEBUG   ", flags),
		infoLog:    log.New(w, "INFO    ", flags),
		warningLog: log.New(w, "WARNING ", flags),
		errorLog:   log.New(w, "ERROR   ", flags),
		level:      level,
	}
}

// setupLoggers initializes writers and per-level loggers.
func (l *Logger) setupLoggers() error {
	infoFile, err := l.openLogFile("info.log")
	if err != nil {
		return err
	}
	warningFile, err := l.openLogFile("warning.log")
	if err != nil {
		return err
	}
	errorFile, err := l.openLogFile("error.log")
	if err != nil {
		return err
	}

	infoWriter := io.MultiWriter(os.Stdout, infoFile)
	warningWriter := io.MultiWriter(os.Stdout, warningFile)
	errorWriter := io.MultiWriter(os.Stderr, errorFile)

	flags := log.Ldate | log.Ltime | log.Lshortfile
	l.debugLog = log.New(os.Stdout, "DEBUG   ", flags)
	l.infoLog = log.New(infoWriter, "INFO    ", flags)
	l.warningLog = log.New(warningWriter, "WARNING ", flags)
	l.errorLog = log.New(errorWriter, "ERROR   ", flags)
	return nil
}

// openLogFile opens or creates a log file for appending.
func (l *Logger) openLogFile(name string) (*os.File, error) {
	filename := filepath.Join(l.logDir, name)
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", filename, err)
	}
	l.files = append(l.files, file)
	return file, nil
}

func (l *Logger) output(level Level, target *log.Logger, format string, v ...interface{}) {
	if level < l.level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	// calldepth 3: output -> Info/Warning/... -> caller
	target.Output(3, fmt.Sprintf(format, v...))
}

// Debug writes a formatted debug-level log entry (stdout only).
func (l *Logger) Debug(format string, v ...interface{}) {
	l.output(LevelDebug, l.debugLog, format, v...)
}

// Info writes a formatted info-level log entry.
func (l *Logger) Info(format string, v ...interface{}) {
	l.output(LevelInfo, l.infoLog, format, v...)
}

// Warning writes a formatted warning-level log entry.
func (l *Logger) Warning(format string, v ...interface{}) {
	l.output(LevelWarning, l.warningLog, format, v...)
}

// Error writes a formatted error-level log entry.
func (l *Logger) Error(format string, v ...interface{}) {
	l.output(LevelError, l.errorLog, format, v...)
}

// Dir returns the directory holding the per-level log files, or "" for a writer logger.
func (l *Logger) Dir() string {
	return l.logDir
}

// CleanLogs truncates the named log file.
func (l *Logger) CleanLogs(fileName string) error {
	if l.logDir == "" {
		return nil
	}
	filePath := filepath.Join(l.logDir, filepath.Base(fileName))

	l.mu.Lock()
	err := os.Truncate(filePath, 0)
	l.mu.Unlock()

	if err != nil {
		l.Error("Error truncating %s: %v", fileName, err)
		return err
	}
	l.Info("Log %s has been cleared", fileName)
	return nil
}

// Close releases the log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
