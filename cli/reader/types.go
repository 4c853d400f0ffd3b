// Package reader provides the read-side data access layer for the adit
// CLI. list and stats read ledger records straight from the dataset;
// nothing here talks to a gateway.
package reader

// ActivityRow is one ledger activity record, flattened for display.
type ActivityRow struct {
	Ts         string `json:"ts"`
	Op         string `json:"op"`
	Env        string `json:"env"`
	Key        string `json:"key"`
	Status     string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Category   string `json:"category"`
	Detail     string `json:"detail,omitempty"`
	Source     string `json:"source"`
	RunID      string `json:"run_id"`
}

// CategoryStat aggregates one operation category.
type CategoryStat struct {
	Category      string `json:"category"`
	Count         int    `json:"count"`
	Errors        int    `json:"errors"`
	Denied        int    `json:"denied"`
	AvgDurationMs int64  `json:"avg_duration_ms"`
}

// ActivityStats summarizes a window of gateway activity.
type ActivityStats struct {
	Total      int            `json:"total"`
	OK         int            `json:"ok"`
	Errors     int            `json:"errors"`
	Denied     int            `json:"denied"`
	Categories []CategoryStat `json:"categories,omitempty"`
}

// MetricsSnapshot is a persisted gateway counter snapshot.
type MetricsSnapshot struct {
	Ts string `json:"ts"`

	// Call lifecycle
	CallsStarted   int64 `json:"calls_started"`
	CallsCompleted int64 `json:"calls_completed"`
	CallsFailed    int64 `json:"calls_failed"`
	CallsCancelled int64 `json:"calls_cancelled"`

	// Streaming
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

	// Dimensions
	StorageBackend string `json:"storage_backend"`
	DefaultEnv     string `json:"default_env"`
	Source         string `json:"source"`
	RunID          string `json:"run_id"`
}
