package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoMetricsFound is returned when no metrics records exist in the dataset.
var ErrNoMetricsFound = errors.New("no metrics records found")

// NewReadDataset creates a Lode Dataset for reading.
// Uses the same codec and layout as the write path to ensure compatibility.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return newDataset(dataset, factory)
}

// NewReadDatasetFS creates a read Dataset with filesystem storage.
func NewReadDatasetFS(dataset, root string) (lode.Dataset, error) {
	return newDataset(dataset, lode.NewFSFactory(root))
}

// NewReadDatasetS3 creates a read Dataset with S3 storage.
// Uses the AWS SDK default credential chain (env vars, shared config, IAM role).
func NewReadDatasetS3(dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := s3Factory(s3cfg)
	if err != nil {
		return nil, err
	}
	return newDataset(dataset, factory)
}

// ActivityFilter narrows a QueryActivity scan. Empty fields match
// everything.
type ActivityFilter struct {
	// Source filters on the source partition key.
	Source string
	// Category filters on the operation category.
	Category string
	// Env filters on the entry's environment (record-level only; env is
	// not a partition key).
	Env string
	// Day filters on the YYYY-MM-DD day partition.
	Day string
	// Limit caps the number of records returned. Zero means no cap.
	Limit int
}

// QueryActivity reads activity records latest-first.
// Manifest path filtering is a coarse pre-filter; record fields are
// authoritative.
func QueryActivity(ctx context.Context, ds lode.Dataset, filter ActivityFilter) ([]map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	var out []map[string]any

	// Iterate in reverse (latest first) — snapshots are ordered by creation time
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]

		if !snapshotMatchesFilter(snap, "source", filter.Source) {
			continue
		}
		if !snapshotMatchesFilter(snap, "category", filter.Category) {
			continue
		}
		if !snapshotMatchesFilter(snap, "day", filter.Day) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Records within a snapshot are appended in write order, so walk
		// them backwards too.
		for j := len(data) - 1; j >= 0; j-- {
			record, ok := data[j].(map[string]any)
			if !ok {
				continue
			}
			if record["record_kind"] != RecordKindActivity {
				continue
			}
			if filter.Source != "" && toString(record["source"]) != filter.Source {
				continue
			}
			if filter.Category != "" && toString(record["category"]) != filter.Category {
				continue
			}
			if filter.Env != "" && toString(record["env"]) != filter.Env {
				continue
			}
			if filter.Day != "" && toString(record["day"]) != filter.Day {
				continue
			}
			out = append(out, record)
			if filter.Limit > 0 && len(out) >= filter.Limit {
				return out, nil
			}
		}
	}

	return out, nil
}

// QueryLatestMetrics finds and reads the most recent metrics record.
// Filters by runID and source if non-empty.
// Returns the raw record map or ErrNoMetricsFound if none exist.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, runID, source string) (map[string]any, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]

		if !isMetricsSnapshot(snap) {
			continue
		}
		if !snapshotMatchesFilter(snap, "run_id", runID) {
			continue
		}
		if !snapshotMatchesFilter(snap, "source", source) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// Record fields are authoritative (handles multi-record snapshots).
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if record["record_kind"] != RecordKindMetrics {
				continue
			}
			if runID != "" && toString(record["run_id"]) != runID {
				continue
			}
			if source != "" && toString(record["source"]) != source {
				continue
			}
			return record, nil
		}
	}

	return nil, ErrNoMetricsFound
}

// isMetricsSnapshot checks if a snapshot contains metrics data
// by examining file paths for the event_type=metrics partition.
func isMetricsSnapshot(snap *lode.Snapshot) bool {
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, "event_type", "metrics") {
			return true
		}
	}
	return false
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.Snapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an
// exact key=value segment. Exact segment matching avoids substring false
// positives (e.g. run_id=r-1 matching run_id=r-10).
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// toString converts a value to string, returning "" for nil or non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
