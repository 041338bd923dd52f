// Package logging provides config-driven categorized file-based logging for rangecraft.
// Logs are written to <workspace>/.rangecraft/logs/ with separate files per category.
// When debug mode is off, logging is a silent no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and initialization
	CategoryAPI       Category = "api"       // LLM backend calls
	CategoryEmbedding Category = "embedding" // Embedding engine
	CategoryIndex     Category = "index"     // Document index operations
	CategoryRetrieval Category = "retrieval" // Context assembly
	CategoryAuthor    Category = "author"    // Generate/repair controller
	CategoryGuide     Category = "guide"     // Hint and explain workflow
)

// Log levels
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	debugMode bool
	logLevel  = LevelInfo
)

// Initialize sets up the logging directory. Should be called once at startup
// with the workspace path. When debug is false this is a no-op and all log
// calls are suppressed.
func Initialize(workspace string, debug bool, level string) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	loggersMu.Lock()
	debugMode = debug
	logLevel = parseLevel(level)
	loggersMu.Unlock()

	if !debug {
		return nil
	}

	dir := filepath.Join(workspace, ".rangecraft", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	loggersMu.Lock()
	logsDir = dir
	loggersMu.Unlock()

	boot := Get(CategoryBoot)
	boot.Info("=== rangecraft logging initialized ===")
	boot.Info("Logs directory: %s", dir)
	boot.Info("Log level: %s", level)
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	loggersMu.RLock()
	l, ok := loggers[category]
	loggersMu.RUnlock()
	if ok {
		return l
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l = &Logger{category: category}
	if debugMode && logsDir != "" {
		path := filepath.Join(logsDir, string(category)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			l.file = f
			l.logger = log.New(f, "", 0)
		}
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level int, label, format string, args ...interface{}) {
	loggersMu.RLock()
	enabled := debugMode && l.logger != nil && level >= logLevel
	loggersMu.RUnlock()
	if !enabled {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s [%s] %s", time.Now().Format("2006-01-02 15:04:05.000"), label, msg)
}

// Debug logs a debug-level message.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs an error-level message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// Close closes all open log files. Safe to call multiple times.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
			l.file = nil
			l.logger = nil
		}
	}
	loggers = make(map[Category]*Logger)
}

// Timer measures operation duration and logs it on Stop.
type Timer struct {
	category Category
	name     string
	start    time.Time
}

// StartTimer begins timing an operation for performance logging.
func StartTimer(category Category, name string) *Timer {
	return &Timer{category: category, name: name, start: time.Now()}
}

// Stop logs the elapsed time since the timer started.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.name, elapsed)
}

// Convenience helpers for the hot categories.

// Index logs an info message to the index category.
func Index(format string, args ...interface{}) { Get(CategoryIndex).Info(format, args...) }

// IndexDebug logs a debug message to the index category.
func IndexDebug(format string, args ...interface{}) { Get(CategoryIndex).Debug(format, args...) }

// API logs an info message to the api category.
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs a debug message to the api category.
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// Embedding logs an info message to the embedding category.
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

// Author logs an info message to the author category.
func Author(format string, args ...interface{}) { Get(CategoryAuthor).Info(format, args...) }

// AuthorDebug logs a debug message to the author category.
func AuthorDebug(format string, args ...interface{}) { Get(CategoryAuthor).Debug(format, args...) }

// Guide logs an info message to the guide category.
func Guide(format string, args ...interface{}) { Get(CategoryGuide).Info(format, args...) }
