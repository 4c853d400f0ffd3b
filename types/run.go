package types

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of an in-flight or completed call.
type RunStatus string

const (
	// RunStatusPending indicates the call was issued but has produced
	// no result yet.
	RunStatusPending RunStatus = "pending"
	// RunStatusStreaming indicates intermediate results have been
	// emitted but no terminal chunk.
	RunStatusStreaming RunStatus = "streaming"
	// RunStatusDone indicates a terminal Response is available.
	RunStatusDone RunStatus = "done"
	// RunStatusCancelled indicates the call was terminated before
	// completion.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the status admits no further transitions.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusDone || s == RunStatusCancelled
}

// RunRecord is the persisted metadata for a call, stored under the
// call key's ref key so a disconnected client can find and re-attach
// to the run.
type RunRecord struct {
	// Key is the call key.
	Key string `json:"key" msgpack:"key"`
	// Module is the target module name.
	Module string `json:"module" msgpack:"module"`
	// Method is the invoked method name.
	Method string `json:"method" msgpack:"method"`
	// Env is the environment the call ran in.
	Env string `json:"env" msgpack:"env"`
	// Status is the current lifecycle state.
	Status RunStatus `json:"status" msgpack:"status"`
	// StartedAt is when the call was dispatched.
	StartedAt time.Time `json:"started_at" msgpack:"started_at"`
	// EndedAt is when the terminal chunk was produced; zero while the
	// call is in flight.
	EndedAt time.Time `json:"ended_at" msgpack:"ended_at"`
	// Error is the failure message for runs that ended in exception.
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Validate checks run record field consistency.
func (r *RunRecord) Validate() error {
	if r.Key == "" {
		return fmt.Errorf("run record missing key")
	}
	switch r.Status {
	case RunStatusPending, RunStatusStreaming, RunStatusDone, RunStatusCancelled:
	default:
		return fmt.Errorf("invalid run status %q", r.Status)
	}
	if !r.Status.IsTerminal() && !r.EndedAt.IsZero() {
		return fmt.Errorf("run %s has end time but non-terminal status %q", r.Key, r.Status)
	}
	return nil
}
