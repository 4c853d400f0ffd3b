package reader

import (
	"context"
	"sort"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/adit/ledger"
)

// ListActivity reads activity rows from the dataset, latest first.
// Records that fail to parse are skipped rather than failing the
// listing.
func ListActivity(ctx context.Context, ds lode.Dataset, filter ledger.ActivityFilter) ([]ActivityRow, error) {
	records, err := ledger.QueryActivity(ctx, ds, filter)
	if err != nil {
		return nil, err
	}
	rows := make([]ActivityRow, 0, len(records))
	for _, record := range records {
		row, err := ParseActivityRecord(record)
		if err != nil {
			continue
		}
		rows = append(rows, *row)
	}
	return rows, nil
}

// StatsActivity aggregates activity matching the filter.
func StatsActivity(ctx context.Context, ds lode.Dataset, filter ledger.ActivityFilter) (*ActivityStats, error) {
	rows, err := ListActivity(ctx, ds, filter)
	if err != nil {
		return nil, err
	}
	return AggregateActivity(rows), nil
}

// LatestMetrics reads the most recent persisted metrics snapshot,
// optionally scoped by run ID and source.
func LatestMetrics(ctx context.Context, ds lode.Dataset, runID, source string) (*MetricsSnapshot, error) {
	record, err := ledger.QueryLatestMetrics(ctx, ds, runID, source)
	if err != nil {
		return nil, err
	}
	return ParseMetricsRecord(record)
}

type categoryAgg struct {
	count       int
	errors      int
	denied      int
	sumDuration int64
}

// AggregateActivity folds rows into status and per-category counts.
// Categories are sorted by name for deterministic output.
func AggregateActivity(rows []ActivityRow) *ActivityStats {
	stats := &ActivityStats{Total: len(rows)}
	byCategory := make(map[string]*categoryAgg)

	for _, row := range rows {
		switch row.Status {
		case ledger.StatusOK:
			stats.OK++
		case ledger.StatusError:
			stats.Errors++
		case ledger.StatusDenied:
			stats.Denied++
		}

		agg := byCategory[row.Category]
		if agg == nil {
			agg = &categoryAgg{}
			byCategory[row.Category] = agg
		}
		agg.count++
		agg.sumDuration += row.DurationMs
		switch row.Status {
		case ledger.StatusError:
			agg.errors++
		case ledger.StatusDenied:
			agg.denied++
		}
	}

	names := make([]string, 0, len(byCategory))
	for name := range byCategory {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		agg := byCategory[name]
		stats.Categories = append(stats.Categories, CategoryStat{
			Category:      name,
			Count:         agg.count,
			Errors:        agg.errors,
			Denied:        agg.denied,
			AvgDurationMs: agg.sumDuration / int64(agg.count),
		})
	}
	return stats
}
