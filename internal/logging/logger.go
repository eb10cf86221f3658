package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

var (
	moduleLoggers   = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	globalConfig    Config
	globalLevelVar  = &slog.LevelVar{}
	isInitialized   bool
	mutex           sync.RWMutex
	logBuffer       *RingBuffer
	logCallback     LogCallback
)

// Config represents logging configuration.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// moduleLevel resolves the configured level for module, falling back to the
// global level and then to info.
func (c Config) moduleLevel(module string) slog.Level {
	level := slog.LevelInfo
	if l, ok := parseLevel(c.Level); ok {
		level = l
	}
	if l, ok := parseLevel(c.Modules[module]); ok {
		level = l
	}
	return level
}

// Initialize sets up the logging system. Loggers handed out earlier keep
// working and pick up the new levels and outputs.
func Initialize(config Config) {
	mutex.Lock()
	defer mutex.Unlock()

	globalConfig = config
	isInitialized = true
	logBuffer = NewRingBuffer(defaultBufferSize)
	globalLevelVar.Set(config.moduleLevel(""))

	// Handlers created before Initialize() use the plain text fallback, so
	// rebuild them with the full chain.
	for module, levelVar := range moduleLevelVars {
		levelVar.Set(config.moduleLevel(module))
		*moduleLoggers[module] = *slog.New(createHandler(config.Format, levelVar)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, globalLevelVar)))
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	mutex.RLock()
	defer mutex.RUnlock()
	return logBuffer
}

// SetLogCallback sets a callback to be called for each new log entry.
// Used for publishing log events to SSE clients.
func SetLogCallback(callback LogCallback) {
	mutex.Lock()
	defer mutex.Unlock()
	logCallback = callback
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	mutex.RLock()
	if logger, exists := moduleLoggers[module]; exists {
		mutex.RUnlock()
		return logger
	}
	mutex.RUnlock()

	mutex.Lock()
	defer mutex.Unlock()

	// Double-check in case another goroutine created it
	if logger, exists := moduleLoggers[module]; exists {
		return logger
	}

	// A LevelVar per module so the level can change at runtime
	levelVar := &slog.LevelVar{}
	format := "text"
	if isInitialized {
		levelVar.Set(globalConfig.moduleLevel(module))
		format = globalConfig.Format
	}

	logger := slog.New(createHandler(format, levelVar)).With("module", module)
	moduleLoggers[module] = logger
	moduleLevelVars[module] = levelVar
	return logger
}

// SetLevel changes the level of one module at runtime.
func SetLevel(module, level string) error {
	parsed, err := ParseLevel(level)
	if err != nil {
		return err
	}
	GetLogger(module)

	mutex.Lock()
	defer mutex.Unlock()
	moduleLevelVars[module].Set(parsed)
	return nil
}

// ParseLevel converts a level name (debug, info, warn, error) to slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	parsed, ok := parseLevel(level)
	if !ok {
		return parsed, fmt.Errorf("unknown log level %q", level)
	}
	return parsed, nil
}

// createHandler creates a slog handler with the specified format and level.
// Logs to stdout, journal (when available), and ring buffer for SSE streaming.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdoutHandler slog.Handler
	if format == "json" {
		stdoutHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdoutHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers []slog.Handler
	if isStdoutAvailable() {
		handlers = append(handlers, stdoutHandler)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	// Always add buffer handler - it checks for a buffer at write time
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// isStdoutAvailable checks if stdout is connected to a terminal, pipe, socket, or file.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	// Available if terminal, pipe, socket, or regular file (not /dev/null which is ModeDevice)
	return (mode&os.ModeCharDevice) != 0 || (mode&os.ModeNamedPipe) != 0 || (mode&os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts a level name to slog.Level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
