// Package applog provides structured logging for the debugger core.
package applog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	// LogLevelDebug is for detailed debugging information.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is for general informational messages.
	LogLevelInfo
	// LogLevelWarn is for warning messages.
	LogLevelWarn
	// LogLevelError is for error messages.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel. Unrecognized values default to info.
func ParseLogLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return LogLevelDebug
	case "info", "INFO":
		return LogLevelInfo
	case "warn", "WARN", "warning", "WARNING":
		return LogLevelWarn
	case "error", "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// field is one key/value pair attached to a Logger via WithField and its
// domain-specific callers below. Kept as an ordered slice rather than a
// map so two loggers built from the same calls print their fields in the
// same order — a DAP trace line is read by a human correlating it against
// the wire capture, and Go's randomized map iteration would reorder
// "session"/"seq"/"command" between runs for no reason.
type field struct {
	key   string
	value any
}

// Logger provides structured logging for the debugger.
type Logger struct {
	mu       sync.Mutex
	level    LogLevel
	output   io.Writer
	prefix   string
	fields   []field
	disabled bool
}

// Config configures a Logger.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel
	// Output is where logs are written. Defaults to os.Stderr.
	Output io.Writer
	// Prefix is prepended to all log messages.
	Prefix string
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LogLevelInfo,
		Output: os.Stderr,
		Prefix: "luadbg",
	}
}

// New creates a new Logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	return &Logger{
		level:  cfg.Level,
		output: cfg.Output,
		prefix: cfg.Prefix,
	}
}

// WithField returns a new logger with the given field appended. Existing
// fields are preserved in order; a repeated key is not deduplicated, since
// every call site below uses disjoint, fixed key names.
func (l *Logger) WithField(key string, value any) *Logger {
	newFields := make([]field, len(l.fields), len(l.fields)+1)
	copy(newFields, l.fields)
	newFields = append(newFields, field{key: key, value: value})

	return &Logger{
		level:    l.level,
		output:   l.output,
		prefix:   l.prefix,
		fields:   newFields,
		disabled: l.disabled,
	}
}

// WithComponent returns a new logger with the component field set, e.g.
// "debugger", "hookdriver" — one of this repository's package names.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithField("component", component)
}

// WithSession returns a new logger tagged with the DAP session id
// (internal/debugger stamps one UUID per connection — see
// github.com/google/uuid in go.mod), so log lines from concurrent
// sessions under one luadbg -addr listener can be told apart.
func (l *Logger) WithSession(id string) *Logger {
	return l.WithField("session", id)
}

// WithRequest returns a new logger tagged with the seq and command of the
// DAP request/response currently being traced, so a "recv"/"send"
// DebugJSON line can be grepped for a specific request/response pair
// without re-parsing its JSON body.
func (l *Logger) WithRequest(seq int, command string) *Logger {
	return l.WithField("seq", seq).WithField("command", command)
}

// WithEvent returns a new logger tagged with the seq and name of the DAP
// event currently being traced (the event counterpart of WithRequest,
// since an event's wire shape carries "event" rather than "command").
func (l *Logger) WithEvent(seq int, eventName string) *Logger {
	return l.WithField("seq", seq).WithField("event", eventName)
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput sets the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// Disable disables all logging.
func (l *Logger) Disable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disabled = true
}

// Enable enables logging.
func (l *Logger) Enable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disabled = false
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, args ...any) { l.log(LogLevelDebug, msg, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string, args ...any) { l.log(LogLevelInfo, msg, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string, args ...any) { l.log(LogLevelWarn, msg, args...) }

// Error logs an error message.
func (l *Logger) Error(msg string, args ...any) { l.log(LogLevelError, msg, args...) }

// DebugJSON logs a framed DAP message at debug level, pretty-printed for
// readability and tagged with the message's own seq/command (or seq/event
// for an outgoing event) pulled straight out of the wire JSON via gjson —
// cheaper than decoding raw back into a dap.Message a second time just to
// read two fields already sitting in the bytes the caller has in hand.
func (l *Logger) DebugJSON(label string, raw []byte) {
	l.mu.Lock()
	level, disabled := l.level, l.disabled
	l.mu.Unlock()
	if disabled || LogLevelDebug < level {
		return
	}

	tagged := l
	seq := gjson.GetBytes(raw, "seq")
	if cmd := gjson.GetBytes(raw, "command"); cmd.Exists() {
		tagged = l.WithRequest(int(seq.Int()), cmd.String())
	} else if ev := gjson.GetBytes(raw, "event"); ev.Exists() {
		tagged = l.WithEvent(int(seq.Int()), ev.String())
	}
	tagged.Debug("%s:\n%s", label, pretty.Pretty(raw))
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.disabled || level < l.level {
		return
	}

	timestamp := time.Now().Format("2006-01-02T15:04:05.000")

	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var line string
	if l.prefix != "" {
		line = fmt.Sprintf("%s [%s] %s: %s", timestamp, level.String(), l.prefix, msg)
	} else {
		line = fmt.Sprintf("%s [%s] %s", timestamp, level.String(), msg)
	}

	if len(l.fields) > 0 {
		line += " {"
		for i, f := range l.fields {
			if i > 0 {
				line += ", "
			}
			line += fmt.Sprintf("%s=%v", f.key, f.value)
		}
		line += "}"
	}

	line += "\n"

	_, _ = l.output.Write([]byte(line))
}

// Null is a logger that discards all output.
var Null = &Logger{disabled: true}

var (
	defaultLogger     *Logger
	defaultLoggerOnce sync.Once
)

// Default returns the process-wide default logger, creating it on first use.
func Default() *Logger {
	defaultLoggerOnce.Do(func() {
		if defaultLogger == nil {
			defaultLogger = New(DefaultConfig())
		}
	})
	return defaultLogger
}

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	defaultLogger = l
}
