// Package adapter defines the completion-event boundary.
//
// Adapters publish call completion notifications to downstream
// systems. The daemon owns adapter lifecycle; operators provide
// configuration only.
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/adit/types"
)

// EventTypeCallCompleted labels every event this package publishes.
const EventTypeCallCompleted = "call_completed"

// CallCompletedEvent is the payload published when a call reaches a
// terminal status.
type CallCompletedEvent struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"` // always "call_completed"
	Key        string `json:"key"`
	Module     string `json:"module"`
	Method     string `json:"method"`
	Env        string `json:"env"`
	Status     string `json:"status"` // done or cancelled
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp"` // RFC 3339, terminal transition time
	DurationMs int64  `json:"duration_ms"`
}

// FromRecord builds the event for a terminal run record.
func FromRecord(rec types.RunRecord) *CallCompletedEvent {
	ev := &CallCompletedEvent{
		EventID:   uuid.NewString(),
		EventType: EventTypeCallCompleted,
		Key:       rec.Key,
		Module:    rec.Module,
		Method:    rec.Method,
		Env:       rec.Env,
		Status:    string(rec.Status),
		Error:     rec.Error,
		Timestamp: rec.EndedAt.UTC().Format(time.RFC3339Nano),
	}
	if !rec.StartedAt.IsZero() && !rec.EndedAt.IsZero() {
		ev.DurationMs = rec.EndedAt.Sub(rec.StartedAt).Milliseconds()
	}
	return ev
}

// Adapter publishes call completion events to a downstream system.
type Adapter interface {
	// Publish sends one completion event. Must respect context
	// cancellation and deadlines.
	Publish(ctx context.Context, event *CallCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Multi fans one event out to every configured adapter. A failing
// target does not stop the others; Publish returns the joined
// failures.
type Multi []Adapter

// Publish sends the event to every adapter.
func (m Multi) Publish(ctx context.Context, event *CallCompletedEvent) error {
	var errs []error
	for _, a := range m {
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every adapter.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
