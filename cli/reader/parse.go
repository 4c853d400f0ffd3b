package reader

import "errors"

// ParseActivityRecord converts a ledger record (map[string]any) to an
// ActivityRow. Handles both int64 (direct writes) and float64 (JSON
// round-trips) for numeric fields.
func ParseActivityRecord(record map[string]any) (*ActivityRow, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	row := &ActivityRow{
		Ts:         toString(record["ts"]),
		Op:         toString(record["op"]),
		Env:        toString(record["env"]),
		Key:        toString(record["key"]),
		Status:     toString(record["status"]),
		DurationMs: toInt64(record["duration_ms"]),
		Category:   toString(record["category"]),
		Detail:     toString(record["detail"]),
		Source:     toString(record["source"]),
		RunID:      toString(record["run_id"]),
	}

	// The write path always populates these; missing values indicate
	// data corruption or a malformed record.
	if row.Ts == "" {
		return nil, errors.New("activity record missing required field: ts")
	}
	if row.Op == "" {
		return nil, errors.New("activity record missing required field: op")
	}

	return row, nil
}

// ParseMetricsRecord converts a ledger record (map[string]any) to a
// MetricsSnapshot. Handles both int64 (direct writes) and float64
// (JSON round-trips) for numeric fields.
func ParseMetricsRecord(record map[string]any) (*MetricsSnapshot, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	snap := &MetricsSnapshot{
		Ts: toString(record["ts"]),

		// Call lifecycle
		CallsStarted:   toInt64(record["calls_started_total"]),
		CallsCompleted: toInt64(record["calls_completed_total"]),
		CallsFailed:    toInt64(record["calls_failed_total"]),
		CallsCancelled: toInt64(record["calls_cancelled_total"]),

		// Streaming
		ChunksStreamed: toInt64(record["chunks_streamed_total"]),
		StdoutBatches:  toInt64(record["stdout_batches_total"]),

		// Object store
		ObjectPuts:    toInt64(record["object_puts_total"]),
		ObjectGets:    toInt64(record["object_gets_total"]),
		ObjectDeletes: toInt64(record["object_deletes_total"]),
		ObjectRenames: toInt64(record["object_renames_total"]),

		// Environments
		EnvsCreated: toInt64(record["envs_created_total"]),

		// Authorization
		AuthChecks:    toInt64(record["auth_checks_total"]),
		AuthDenials:   toInt64(record["auth_denials_total"]),
		AuthCacheHits: toInt64(record["auth_cache_hits_total"]),
		AuthCacheMiss: toInt64(record["auth_cache_miss_total"]),
		AuthRefreshes: toInt64(record["auth_refreshes_total"]),

		// Ledger / Storage
		LedgerWriteSuccess: toInt64(record["ledger_write_success_total"]),
		LedgerWriteFailure: toInt64(record["ledger_write_failure_total"]),

		// Dimensions
		StorageBackend: toString(record["storage_backend"]),
		DefaultEnv:     toString(record["default_env"]),
		Source:         toString(record["source"]),
		RunID:          toString(record["run_id"]),
	}

	// The write path always populates these; missing values indicate
	// data corruption or a malformed record.
	if snap.Ts == "" {
		return nil, errors.New("metrics record missing required field: ts")
	}
	if snap.RunID == "" {
		return nil, errors.New("metrics record missing required field: run_id")
	}
	if snap.StorageBackend == "" {
		return nil, errors.New("metrics record missing required field: storage_backend")
	}

	return snap, nil
}

// toInt64 converts a value to int64, handling float64 from JSON and int64 from direct writes.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
