// Package ledger persists gateway activity to Lode datasets.
//
// Every gateway operation appends a timestamped activity record, and the
// daemon writes a metrics snapshot on shutdown. Records land in a
// Hive-partitioned dataset (source/category/day/run_id/event_type) encoded
// as JSONL. The filesystem backend is the default; S3 is available for
// durable remote storage and the memory factory for tests.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/justapithecus/adit/metrics"
)

// Config holds ledger partition configuration.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Source is the partition key naming the writing system.
	Source string
	// RunID is the partition key identifying this gateway process session.
	RunID string
}

// Client abstracts ledger storage writes.
type Client interface {
	// WriteActivity appends a batch of activity entries.
	// Must preserve ordering within the batch.
	WriteActivity(ctx context.Context, entries []Entry) error

	// WriteMetrics appends a point-in-time metrics record.
	WriteMetrics(ctx context.Context, snap metrics.Snapshot, at time.Time) error

	// Close releases client resources.
	Close() error
}

// LedgerClient is the Lode-backed implementation of Client.
// Uses Lode's HiveLayout with partition keys: source/category/day/run_id/event_type.
type LedgerClient struct {
	dataset lode.Dataset
	config  Config
}

// NewClient creates a ledger client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewClient(cfg Config, root string) (*LedgerClient, error) {
	return NewClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewClientWithFactory creates a ledger client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewClientWithFactory(cfg Config, factory lode.StoreFactory) (*LedgerClient, error) {
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return &LedgerClient{dataset: ds, config: cfg}, nil
}

// newDataset opens a dataset with the layout and codec shared by the
// write and read paths.
func newDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout("source", "category", "day", "run_id", "event_type"),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// WriteActivity writes a batch of activity entries.
// Each entry is partitioned by its own operation and day.
func (c *LedgerClient) WriteActivity(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	records := make([]any, 0, len(entries))
	for _, e := range entries {
		records = append(records, toActivityRecordMap(e, c.config))
	}

	_, err := c.dataset.Write(ctx, records, lode.Metadata{})
	return WrapWriteError(err, fmt.Sprintf("%s/activity", c.config.Dataset))
}

// WriteMetrics writes a metrics snapshot record to the event_type=metrics
// partition.
func (c *LedgerClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, at time.Time) error {
	records := []any{toMetricsRecordMap(snap, c.config, at)}

	_, err := c.dataset.Write(ctx, records, lode.Metadata{})
	return WrapWriteError(err, fmt.Sprintf("%s/metrics", c.config.Dataset))
}

// Close releases client resources.
func (c *LedgerClient) Close() error {
	return nil
}

// Verify LedgerClient implements Client.
var _ Client = (*LedgerClient)(nil)

// StubClient is a test client that records writes without persisting.
// Safe for concurrent use so tests can assert against interval flushes.
type StubClient struct {
	mu       sync.Mutex
	activity [][]Entry
	metrics  []metrics.Snapshot
	closed   bool
	err      error
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// SetErr makes subsequent writes fail with err. Pass nil to heal.
func (c *StubClient) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// WriteActivity implements Client.
func (c *StubClient) WriteActivity(_ context.Context, entries []Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	batch := make([]Entry, len(entries))
	copy(batch, entries)
	c.activity = append(c.activity, batch)
	return nil
}

// WriteMetrics implements Client.
func (c *StubClient) WriteMetrics(_ context.Context, snap metrics.Snapshot, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.metrics = append(c.metrics, snap)
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Batches returns the recorded activity batches.
func (c *StubClient) Batches() [][]Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]Entry, len(c.activity))
	copy(out, c.activity)
	return out
}

// Entries returns all recorded entries flattened across batches.
func (c *StubClient) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Entry
	for _, batch := range c.activity {
		out = append(out, batch...)
	}
	return out
}

// MetricsWrites returns the recorded metrics snapshots.
func (c *StubClient) MetricsWrites() []metrics.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]metrics.Snapshot, len(c.metrics))
	copy(out, c.metrics)
	return out
}

// Closed reports whether Close was called.
func (c *StubClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
