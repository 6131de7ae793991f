package formstage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Event is the notification handed to the audit collaborator after a change is persisted.
type Event struct {
	Action     string    `json:"action"`
	Category   string    `json:"category"`
	ResourceID string    `json:"resourceId"`
	Timestamp  time.Time `json:"timestamp"`
}

// AuditSink receives engine events. The engine neither formats nor stores them itself.
type AuditSink interface {
	Notify(ctx context.Context, event Event) error
}

// AuditSinkFunc adapts a plain function to AuditSink.
type AuditSinkFunc func(ctx context.Context, event Event) error

// Notify implements AuditSink
func (f AuditSinkFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// JSONLinesSink writes one JSON object per event, newline terminated.
type JSONLinesSink struct {
	mu  deadlock.Mutex
	out io.Writer
}

// NewJSONLinesSink creates a sink writing to out.
func NewJSONLinesSink(out io.Writer) *JSONLinesSink {
	return &JSONLinesSink{out: out}
}

// Notify implements AuditSink
func (s *JSONLinesSink) Notify(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// ReadEvents decodes every event written by a JSONLinesSink.
func ReadEvents(r io.Reader) ([]Event, error) {
	decoder := json.NewDecoder(r)

	var events []Event
	for {
		var event Event
		if err := decoder.Decode(&event); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, fmt.Errorf("failed to decode event %d: %w", len(events)+1, err)
		}
		events = append(events, event)
	}
}

// MemorySink keeps events in memory, mostly for tests and the CLI's dry runs.
type MemorySink struct {
	mu     deadlock.Mutex
	events []Event
}

// Notify implements AuditSink
func (s *MemorySink) Notify(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Actions returns the recorded action names in arrival order.
func (s *MemorySink) Actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}
