// Package alert provides the structured failure-reporting side channel for
// the ingestion pipeline. Every component reports failures through a Sink
// rather than aborting the process where isolation is required.
//
// The sink is a terminal reporting boundary: it does not retry or escalate.
// Additional implementations (Slack, PagerDuty, email) can be added behind
// the same interface.
package alert

import (
	"sync"

	"go.uber.org/zap"
)

// Sink receives failure reports carrying an event name and contextual
// key/value detail. Implementations must be safe for sequential reuse
// across a whole run.
type Sink interface {
	Alert(event string, fields ...zap.Field)
}

// LogSink reports failures through a structured logger at error level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a sink backed by the given logger. The logger is
// required; injection happens once at construction.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Alert logs the event at error level with its contextual fields.
func (s *LogSink) Alert(event string, fields ...zap.Field) {
	s.logger.Error(event, fields...)
}

// CaptureSink records alerts in memory. Test double.
type CaptureSink struct {
	mu     sync.Mutex
	events []CapturedAlert
}

// CapturedAlert is a single recorded alert.
type CapturedAlert struct {
	Event  string
	Fields []zap.Field
}

// NewCaptureSink creates an empty capture sink.
func NewCaptureSink() *CaptureSink {
	return &CaptureSink{}
}

// Alert records the event.
func (s *CaptureSink) Alert(event string, fields ...zap.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, CapturedAlert{Event: event, Fields: fields})
}

// Events returns a copy of the recorded alerts.
func (s *CaptureSink) Events() []CapturedAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]CapturedAlert, len(s.events))
	copy(out, s.events)
	return out
}

// Names returns the recorded event names in order.
func (s *CaptureSink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.events))
	for i, e := range s.events {
		names[i] = e.Event
	}
	return names
}
