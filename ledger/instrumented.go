package ledger

import (
	"context"
	"time"

	"github.com/justapithecus/adit/metrics"
)

// InstrumentedClient wraps a Client and records write outcomes on the
// metrics collector. Each write increments ledger_write_success or
// ledger_write_failure.
type InstrumentedClient struct {
	inner     Client
	collector *metrics.Collector
}

// NewInstrumentedClient wraps a client with metrics instrumentation.
func NewInstrumentedClient(inner Client, collector *metrics.Collector) *InstrumentedClient {
	return &InstrumentedClient{inner: inner, collector: collector}
}

// WriteActivity delegates to the inner client and records the outcome.
func (c *InstrumentedClient) WriteActivity(ctx context.Context, entries []Entry) error {
	err := c.inner.WriteActivity(ctx, entries)
	if err != nil {
		c.collector.IncLedgerWriteFailure()
	} else {
		c.collector.IncLedgerWriteSuccess()
	}
	return err
}

// WriteMetrics delegates to the inner client and records the outcome.
func (c *InstrumentedClient) WriteMetrics(ctx context.Context, snap metrics.Snapshot, at time.Time) error {
	err := c.inner.WriteMetrics(ctx, snap, at)
	if err != nil {
		c.collector.IncLedgerWriteFailure()
	} else {
		c.collector.IncLedgerWriteSuccess()
	}
	return err
}

// Close delegates to the inner client.
func (c *InstrumentedClient) Close() error {
	return c.inner.Close()
}

// Verify InstrumentedClient implements Client.
var _ Client = (*InstrumentedClient)(nil)
