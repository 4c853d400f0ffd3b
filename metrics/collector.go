// Package metrics provides gateway-wide metrics collection.
//
// The Collector accumulates counters for the life of the server
// process. It is a leaf package with no internal dependencies. Per-call
// chunk counts are absorbed when a call completes rather than recorded
// live, avoiding double-counting across poll iterations.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all gateway metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Call lifecycle
	CallsStarted   int64 `json:"calls_started"`
	CallsCompleted int64 `json:"calls_completed"`
	CallsFailed    int64 `json:"calls_failed"`
	CallsCancelled int64 `json:"calls_cancelled"`

	// Streaming (absorbed at call completion)
	ChunksStreamed int64 `json:"chunks_streamed"`
	StdoutBatches  int64 `json:"stdout_batches"`

	// Object store
	ObjectPuts    int64 `json:"object_puts"`
	ObjectGets    int64 `json:"object_gets"`
	ObjectDeletes int64 `json:"object_deletes"`
	ObjectRenames int64 `json:"object_renames"`

	// Environments
	EnvsCreated int64 `json:"envs_created"`

	// Authorization
	AuthChecks    int64 `json:"auth_checks"`
	AuthDenials   int64 `json:"auth_denials"`
	AuthCacheHits int64 `json:"auth_cache_hits"`
	AuthCacheMiss int64 `json:"auth_cache_miss"`
	AuthRefreshes int64 `json:"auth_refreshes"`

	// Ledger / Storage
	LedgerWriteSuccess int64 `json:"ledger_write_success"`
	LedgerWriteFailure int64 `json:"ledger_write_failure"`

	// Dimensions (informational, set at construction)
	StorageBackend string `json:"storage_backend"`
	DefaultEnv     string `json:"default_env"`
}

// Collector accumulates metrics for the gateway process.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	// Call lifecycle
	callsStarted   int64
	callsCompleted int64
	callsFailed    int64
	callsCancelled int64

	// Streaming
	chunksStreamed int64
	stdoutBatches  int64

	// Object store
	objectPuts    int64
	objectGets    int64
	objectDeletes int64
	objectRenames int64

	// Environments
	envsCreated int64

	// Authorization
	authChecks    int64
	authDenials   int64
	authCacheHits int64
	authCacheMiss int64
	authRefreshes int64

	// Ledger / Storage
	ledgerWriteSuccess int64
	ledgerWriteFailure int64

	// Dimensions
	storageBackend string
	defaultEnv     string
}

// NewCollector creates a Collector with dimension labels.
func NewCollector(storageBackend, defaultEnv string) *Collector {
	return &Collector{
		storageBackend: storageBackend,
		defaultEnv:     defaultEnv,
	}
}

// --- Call lifecycle ---

// IncCallStarted records a call dispatch.
func (c *Collector) IncCallStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsStarted++
	c.mu.Unlock()
}

// IncCallCompleted records a call that ended in a terminal result.
func (c *Collector) IncCallCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsCompleted++
	c.mu.Unlock()
}

// IncCallFailed records a call that ended in a terminal exception.
func (c *Collector) IncCallFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsFailed++
	c.mu.Unlock()
}

// IncCallCancelled records an externally terminated call.
func (c *Collector) IncCallCancelled() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsCancelled++
	c.mu.Unlock()
}

// --- Object store ---

// IncObjectPut records a store write.
func (c *Collector) IncObjectPut() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.objectPuts++
	c.mu.Unlock()
}

// IncObjectGet records a store read.
func (c *Collector) IncObjectGet() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.objectGets++
	c.mu.Unlock()
}

// IncObjectDelete records a store delete.
func (c *Collector) IncObjectDelete() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.objectDeletes++
	c.mu.Unlock()
}

// IncObjectRename records a store rename.
func (c *Collector) IncObjectRename() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.objectRenames++
	c.mu.Unlock()
}

// --- Environments ---

// IncEnvCreated records a new environment construction.
func (c *Collector) IncEnvCreated() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.envsCreated++
	c.mu.Unlock()
}

// --- Authorization ---

// IncAuthCheck records a permission check.
func (c *Collector) IncAuthCheck() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.authChecks++
	c.mu.Unlock()
}

// IncAuthDenial records a denied permission check.
func (c *Collector) IncAuthDenial() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.authDenials++
	c.mu.Unlock()
}

// IncAuthCacheHit records a permission answered from cache.
func (c *Collector) IncAuthCacheHit() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.authCacheHits++
	c.mu.Unlock()
}

// IncAuthCacheMiss records a permission that required an authority lookup.
func (c *Collector) IncAuthCacheMiss() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.authCacheMiss++
	c.mu.Unlock()
}

// IncAuthRefresh records an explicit cache refresh.
func (c *Collector) IncAuthRefresh() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.authRefreshes++
	c.mu.Unlock()
}

// --- Ledger / Storage ---
// Ledger counters are per-call, not per-record. A single write with N
// records counts as 1 success.

// IncLedgerWriteSuccess records a successful ledger write operation (per-call).
func (c *Collector) IncLedgerWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ledgerWriteSuccess++
	c.mu.Unlock()
}

// IncLedgerWriteFailure records a failed ledger write operation (per-call).
func (c *Collector) IncLedgerWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.ledgerWriteFailure++
	c.mu.Unlock()
}

// --- Streaming (absorbed at call completion) ---

// AbsorbStreamStats adds one call's chunk counts into the collector.
// Called once per call with the final multiplexer tallies.
func (c *Collector) AbsorbStreamStats(chunks, stdoutBatches int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksStreamed += chunks
	c.stdoutBatches += stdoutBatches
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		CallsStarted:   c.callsStarted,
		CallsCompleted: c.callsCompleted,
		CallsFailed:    c.callsFailed,
		CallsCancelled: c.callsCancelled,

		ChunksStreamed: c.chunksStreamed,
		StdoutBatches:  c.stdoutBatches,

		ObjectPuts:    c.objectPuts,
		ObjectGets:    c.objectGets,
		ObjectDeletes: c.objectDeletes,
		ObjectRenames: c.objectRenames,

		EnvsCreated: c.envsCreated,

		AuthChecks:    c.authChecks,
		AuthDenials:   c.authDenials,
		AuthCacheHits: c.authCacheHits,
		AuthCacheMiss: c.authCacheMiss,
		AuthRefreshes: c.authRefreshes,

		LedgerWriteSuccess: c.ledgerWriteSuccess,
		LedgerWriteFailure: c.ledgerWriteFailure,

		StorageBackend: c.storageBackend,
		DefaultEnv:     c.defaultEnv,
	}
}
