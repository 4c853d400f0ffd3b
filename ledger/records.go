package ledger

import (
	"time"

	"github.com/justapithecus/adit/metrics"
)

// Record kind discriminators. Every record carries record_kind so readers
// can dispatch without inspecting partition paths.
const (
	RecordKindActivity = "activity"
	RecordKindMetrics  = "metrics"
)

// Activity entry status values.
const (
	StatusOK     = "ok"
	StatusError  = "error"
	StatusDenied = "denied"
)

// Operation categories, used as the "category" partition key.
const (
	CategoryCall   = "call"
	CategoryObject = "object"
	CategoryEnv    = "env"
	CategoryServer = "server"
)

// CategoryFor maps an operation name to its partition category.
// Unrecognized operations land in the server category.
func CategoryFor(op string) string {
	switch op {
	case "call", "call_func", "run", "cancel":
		return CategoryCall
	case "put", "get", "delete", "rename", "keys", "run_object":
		return CategoryObject
	case "env", "resource", "secrets":
		return CategoryEnv
	default:
		return CategoryServer
	}
}

// Entry is one activity ledger entry. The gateway records one per
// operation, successful or not.
type Entry struct {
	// ID is a unique record identifier. Filled by the Recorder when empty.
	ID string
	// Ts is the operation timestamp. Filled by the Recorder when zero.
	Ts time.Time
	// Op is the operation name (put, get, call, cancel, ...).
	Op string
	// Env is the environment the operation targeted, if any.
	Env string
	// Key is the object or call key involved, if any.
	Key string
	// Status is ok, error, or denied.
	Status string
	// Detail carries the error message for non-ok entries.
	Detail string
	// Duration is how long the operation took.
	Duration time.Duration
}

// DeriveDay computes the "day" partition key from a timestamp.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// toActivityRecordMap converts an Entry to a map for Lode storage.
// The Hive layout requires records as map[string]any carrying their own
// partition keys: source, category, day, run_id, event_type.
func toActivityRecordMap(e Entry, cfg Config) map[string]any {
	m := map[string]any{
		"record_kind": RecordKindActivity,
		"id":          e.ID,
		"ts":          e.Ts.UTC().Format(time.RFC3339Nano),
		"op":          e.Op,
		"env":         e.Env,
		"key":         e.Key,
		"status":      e.Status,
		"duration_ms": e.Duration.Milliseconds(),
		"source":      cfg.Source,
		"category":    CategoryFor(e.Op),
		"day":         DeriveDay(e.Ts),
		"run_id":      cfg.RunID,
		"event_type":  e.Op, // partition key
	}
	if e.Detail != "" {
		m["detail"] = e.Detail
	}
	return m
}

// toMetricsRecordMap converts a metrics snapshot to a map for Lode storage.
// Counter fields use a _total suffix. Written to the event_type=metrics
// partition.
func toMetricsRecordMap(snap metrics.Snapshot, cfg Config, at time.Time) map[string]any {
	return map[string]any{
		"record_kind": RecordKindMetrics,
		"ts":          at.UTC().Format(time.RFC3339Nano),

		"calls_started_total":   snap.CallsStarted,
		"calls_completed_total": snap.CallsCompleted,
		"calls_failed_total":    snap.CallsFailed,
		"calls_cancelled_total": snap.CallsCancelled,

		"chunks_streamed_total": snap.ChunksStreamed,
		"stdout_batches_total":  snap.StdoutBatches,

		"object_puts_total":    snap.ObjectPuts,
		"object_gets_total":    snap.ObjectGets,
		"object_deletes_total": snap.ObjectDeletes,
		"object_renames_total": snap.ObjectRenames,

		"envs_created_total": snap.EnvsCreated,

		"auth_checks_total":     snap.AuthChecks,
		"auth_denials_total":    snap.AuthDenials,
		"auth_cache_hits_total": snap.AuthCacheHits,
		"auth_cache_miss_total": snap.AuthCacheMiss,
		"auth_refreshes_total":  snap.AuthRefreshes,

		"ledger_write_success_total": snap.LedgerWriteSuccess,
		"ledger_write_failure_total": snap.LedgerWriteFailure,

		"storage_backend": snap.StorageBackend,
		"default_env":     snap.DefaultEnv,

		"source":     cfg.Source,
		"category":   CategoryServer,
		"day":        DeriveDay(at),
		"run_id":     cfg.RunID,
		"event_type": "metrics", // partition key
	}
}
