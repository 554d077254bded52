// Package diagnostics implements the renderer's non-fatal
// status-reporting channel: graph atoms report dropped messages, allocation
// overflow, and out-of-range parameters through a Sink rather than
// returning an error that would stop the audio thread.
package diagnostics

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Severity classifies a diagnostic for routing/filtering by a Sink.
type Severity int

const (
	// Info is a routine, expected condition (e.g. a slot going silent).
	Info Severity = iota
	// Warn is a recoverable anomaly the renderer worked around (a
	// dropped message, a clamped parameter).
	Warn
	// Error is a condition that degraded output for the current block
	// (e.g. an atom's Process call failed and its outputs were
	// zero-filled).
	Error
)

func (s Severity) String() string {
	switch s {
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one diagnostic occurrence: which component and port it came
// from, a severity, and a human-readable message.
type Event struct {
	Component string
	Port      string
	Severity  Severity
	Message   string
}

// Sink receives diagnostic events. Implementations must not block the
// calling atom's Process method for long; the default implementation
// just logs.
type Sink interface {
	Report(Event)
}

// SinkFunc adapts a plain function to the Sink interface, letting
// atom-level code (e.g. reverbobject.ReverbParameterCalculator's
// pre-pml Diagnostic callback) report through a Sink without an
// intermediate type.
type SinkFunc func(Event)

func (f SinkFunc) Report(e Event) { f(e) }

// LogSink is the default Sink: it writes one structured line per event
// via a charmbracelet/log.Logger, the same leveled logger the CLI uses
// for its own output.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink constructs a LogSink writing to w. A nil w defaults to
// os.Stderr.
func NewLogSink(w io.Writer) *LogSink {
	if w == nil {
		w = os.Stderr
	}
	return &LogSink{logger: log.New(w)}
}

func (s *LogSink) Report(e Event) {
	fields := []interface{}{"component", e.Component}
	if e.Port != "" {
		fields = append(fields, "port", e.Port)
	}
	switch e.Severity {
	case Error:
		s.logger.Error(e.Message, fields...)
	case Warn:
		s.logger.Warn(e.Message, fields...)
	default:
		s.logger.Info(e.Message, fields...)
	}
}

// CountingSink wraps another Sink and keeps per-severity counters, so
// that no drop or clamp goes unrecorded even when the wrapped sink only
// logs.
type CountingSink struct {
	Next  Sink
	Info  int
	Warn  int
	Error int
}

func (s *CountingSink) Report(e Event) {
	switch e.Severity {
	case Error:
		s.Error++
	case Warn:
		s.Warn++
	default:
		s.Info++
	}
	if s.Next != nil {
		s.Next.Report(e)
	}
}

// Reportf is a convenience for building and reporting an Event in one
// call.
func Reportf(sink Sink, component, port string, sev Severity, format string, args ...interface{}) {
	if sink == nil {
		return
	}
	sink.Report(Event{Component: component, Port: port, Severity: sev, Message: fmt.Sprintf(format, args...)})
}
