package dthrottle

import (
	"encoding/json"
	"io"
	"log"
)

// Logger provides structured logging hooks. The core never writes
// directly to stdout/stderr; every log line flows through here so a host
// application can route it wherever it already sends logs.
//
// Grounded on logging.go's Logger/StdLogger, extended with a Debug level
// to match the original's FLLogDebug("Throttle::check_request", ...)
// per-admission trace (throttle.cpp).
type Logger interface {
	Debug(msg string, fields map[string]any)
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// StdLogger logs to an io.Writer as single-line JSON.
type StdLogger struct {
	l          *log.Logger
	debugLevel bool
}

// NewStdLogger constructs a StdLogger. When debug is false, Debug calls
// are dropped without formatting - the hot admission path can log at
// Debug level (as the original does on every check_request) without
// paying for JSON marshaling in production.
func NewStdLogger(w io.Writer, debug bool) *StdLogger {
	return &StdLogger{l: log.New(w, "", log.LstdFlags), debugLevel: debug}
}

// Debug logs a debug message, if enabled.
func (s *StdLogger) Debug(msg string, fields map[string]any) {
	if s == nil || !s.debugLevel {
		return
	}
	s.log("debug", msg, fields)
}

// Info logs an info message.
func (s *StdLogger) Info(msg string, fields map[string]any) {
	s.log("info", msg, fields)
}

// Error logs an error message.
func (s *StdLogger) Error(msg string, fields map[string]any) {
	s.log("error", msg, fields)
}

func (s *StdLogger) log(level, msg string, fields map[string]any) {
	if s == nil || s.l == nil {
		return
	}
	payload := map[string]any{"level": level, "msg": msg}
	for k, v := range fields {
		payload[k] = v
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.l.Println(msg)
		return
	}
	s.l.Println(string(data))
}

// NopLogger discards everything. Useful as a zero-value-safe default and
// in tests that don't care about log output.
type NopLogger struct{}

// Debug discards msg.
func (NopLogger) Debug(string, map[string]any) {}

// Info discards msg.
func (NopLogger) Info(string, map[string]any) {}

// Error discards msg.
func (NopLogger) Error(string, map[string]any) {}
