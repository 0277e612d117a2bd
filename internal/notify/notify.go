// Package notify delivers submit and export outcomes to observational sinks.
package notify

import (
	"time"

	"go.uber.org/zap"
)

// Kind identifies which command an event reports on
type Kind string

// Event kinds
const (
	KindSubmit Kind = "submit"
	KindExport Kind = "export"
)

// Event is the outcome of a submit or export command. Err is nil on success.
type Event struct {
	Kind      Kind
	SessionID string
	Format    string // Export only
	Err       error
	At        time.Time
}

// OK reports whether the command succeeded
func (e Event) OK() bool {
	return e.Err == nil
}

// Sink receives events. Implementations must not block and must not call back
// into the controller that raised the event.
type Sink interface {
	Notify(e Event)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(e Event)

// Notify calls f
func (f SinkFunc) Notify(e Event) {
	f(e)
}

// Discard drops every event
var Discard Sink = SinkFunc(func(Event) {})

// Multi fans an event out to every sink in order
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Notify(e)
			}
		}
	})
}

// LogSink writes events to a zap logger, failures at warn level
type LogSink struct {
	Logger *zap.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{Logger: logger}
}

// Notify logs the event
func (s *LogSink) Notify(e Event) {
	fields := []zap.Field{
		zap.String("kind", string(e.Kind)),
		zap.String("session_id", e.SessionID),
	}
	if e.Format != "" {
		fields = append(fields, zap.String("format", e.Format))
	}

	if e.Err != nil {
		s.Logger.Warn(failureMessage(e.Kind), append(fields, zap.Error(e.Err))...)
		return
	}
	s.Logger.Info(successMessage(e.Kind), fields...)
}

func successMessage(k Kind) string {
	switch k {
	case KindSubmit:
		return "Research started"
	case KindExport:
		return "Export complete"
	default:
		return "Command succeeded"
	}
}

func failureMessage(k Kind) string {
	switch k {
	case KindSubmit:
		return "Submission failed"
	case KindExport:
		return "Export failed"
	default:
		return "Command failed"
	}
}
