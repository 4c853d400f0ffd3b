// Package types defines core domain types for the adit gateway.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strings"
	"time"
)

// Message is the envelope for every gateway call. Clients post it to
// /{module}/{method}; the server fills in defaults before dispatch.
type Message struct {
	// Key identifies the call and becomes the object store key for its
	// result. Empty means the server generates one.
	Key string `json:"key,omitempty"`
	// Env is the target environment. Empty means resolve from the key's
	// owning environment, falling back to the server default.
	Env string `json:"env,omitempty"`
	// Data is the opaque serialized payload (args, object, or config
	// depending on the route).
	Data []byte `json:"data,omitempty"`
	// StreamLogs requests that captured stdout batches be interleaved
	// into the response stream.
	StreamLogs bool `json:"stream_logs"`
	// Save requests that the result be written through to the persistent
	// store in addition to the environment's namespace.
	Save bool `json:"save"`
	// Remote requests fire-and-forget dispatch: the server replies with
	// the key immediately instead of streaming the result.
	Remote bool `json:"remote"`
}

// GenerateKey builds the default call key from the target and the
// current wall clock, millisecond precision.
func GenerateKey(module, method string) string {
	return fmt.Sprintf("%s_%s_%d", module, method, time.Now().UnixMilli())
}

// RefKey is the store key holding the run record for a call key.
func RefKey(key string) string {
	return key + "_ref"
}

// IsRefKey reports whether key names a run record rather than a result.
func IsRefKey(key string) bool {
	return strings.HasSuffix(key, "_ref")
}

// Validate checks message fields that the server cannot default.
// Keys become file names under the data directory, so traversal
// sequences are rejected outright.
func (m *Message) Validate() error {
	if strings.Contains(m.Key, "\x00") {
		return fmt.Errorf("invalid key %q: must not contain NUL", m.Key)
	}
	if strings.Contains(m.Key, "..") {
		return fmt.Errorf("invalid key %q: must not contain traversal sequences", m.Key)
	}
	return nil
}
