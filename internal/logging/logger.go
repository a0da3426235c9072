// Package logging provides categorized file-based debug logging for momentum.
// Logs are written to .momentum/logs/ with a separate file per category.
// When debug mode is off the whole package is a silent no-op.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot     Category = "boot"     // Startup and wiring
	CategoryStore    Category = "store"    // SQLite store operations
	CategoryReader   Category = "reader"   // Context/state reads
	CategoryResolver Category = "resolver" // Goal title resolution
	CategoryMatcher  Category = "matcher"  // Habit completion matching
	CategoryFocus    Category = "focus"    // Priority snapshot writes
	CategoryAgent    Category = "agent"    // Dispatch loop iterations
	CategoryTools    Category = "tools"    // Action execution
	CategoryAPI      Category = "api"      // LLM API calls
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options controls logger behavior. Defined here rather than in config to
// avoid a circular import.
type Options struct {
	DebugMode  bool
	Level      string
	Categories map[string]bool
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	logLevel  int
)

// Initialize sets up the logging directory. Should be called once at startup
// with the workspace path. A no-op unless debug mode is enabled.
func Initialize(workspace string, o Options) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	opts = o
	logLevel = parseLevel(o.Level)
	logsDir = filepath.Join(workspace, ".momentum", "logs")

	if !opts.DebugMode {
		return nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	boot := Get(CategoryBoot)
	boot.Info("=== momentum logging initialized ===")
	boot.Info("Logs directory: %s", logsDir)
	boot.Info("Log level: %s", o.Level)
	return nil
}

func parseLevel(level string) int {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func categoryEnabled(cat Category) bool {
	if !opts.DebugMode {
		return false
	}
	if len(opts.Categories) == 0 {
		return true
	}
	enabled, present := opts.Categories[string(cat)]
	return !present || enabled
}

// Get returns the logger for a category, creating it on first use.
func Get(cat Category) *Logger {
	loggersMu.RLock()
	l, ok := loggers[cat]
	loggersMu.RUnlock()
	if ok {
		return l
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[cat]; ok {
		return l
	}

	l = &Logger{category: cat}
	if categoryEnabled(cat) && logsDir != "" {
		path := filepath.Join(logsDir, string(cat)+".log")
		if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
			l.file = f
			l.logger = log.New(f, "", 0)
		}
	}
	loggers[cat] = l
	return l
}

func (l *Logger) write(level int, levelName, format string, args ...interface{}) {
	if l.logger == nil || level < logLevel {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	l.logger.Printf("%s [%s] %s", ts, levelName, fmt.Sprintf(format, args...))
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// Close flushes and closes all open log files.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Convenience helpers, one pair per hot category.

func Store(format string, args ...interface{})         { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})    { Get(CategoryStore).Debug(format, args...) }
func Agent(format string, args ...interface{})         { Get(CategoryAgent).Info(format, args...) }
func AgentDebug(format string, args ...interface{})    { Get(CategoryAgent).Debug(format, args...) }
func Resolver(format string, args ...interface{})      { Get(CategoryResolver).Info(format, args...) }
func ResolverDebug(format string, args ...interface{}) { Get(CategoryResolver).Debug(format, args...) }
func Matcher(format string, args ...interface{})       { Get(CategoryMatcher).Info(format, args...) }
func MatcherDebug(format string, args ...interface{})  { Get(CategoryMatcher).Debug(format, args...) }
func Tools(format string, args ...interface{})         { Get(CategoryTools).Info(format, args...) }
func ToolsDebug(format string, args ...interface{})    { Get(CategoryTools).Debug(format, args...) }
func API(format string, args ...interface{})           { Get(CategoryAPI).Info(format, args...) }
func APIDebug(format string, args ...interface{})      { Get(CategoryAPI).Debug(format, args...) }

// Timer measures the duration of an operation and logs it on Stop.
type Timer struct {
	category Category
	name     string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(cat Category, name string) *Timer {
	return &Timer{category: cat, name: name, start: time.Now()}
}

// Stop logs the elapsed time. Operations slower than a second are logged at
// warn level.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	l := Get(t.category)
	if elapsed > time.Second {
		l.Warn("%s took %v", t.name, elapsed)
		return
	}
	l.Debug("%s took %v", t.name, elapsed)
}
