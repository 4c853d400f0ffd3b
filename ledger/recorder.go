package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/metrics"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	// FlushCount triggers a flush after N entries accumulate.
	// Zero means count-based flush is disabled.
	FlushCount int

	// FlushInterval triggers a flush every interval.
	// Zero means interval-based flush is disabled.
	FlushInterval time.Duration

	// Logger is an optional logger for flush observability.
	Logger *log.Logger
}

// FlushTrigger identifies which trigger caused a flush.
type FlushTrigger string

const (
	// FlushTriggerCount indicates a count-threshold flush.
	FlushTriggerCount FlushTrigger = "count"
	// FlushTriggerInterval indicates an interval-based flush.
	FlushTriggerInterval FlushTrigger = "interval"
	// FlushTriggerShutdown indicates an explicit or shutdown flush.
	FlushTriggerShutdown FlushTrigger = "shutdown"
)

// ErrRecorderConfig is returned when RecorderConfig is invalid.
var ErrRecorderConfig = errors.New("invalid recorder config: at least one of FlushCount or FlushInterval must be set")

// Recorder batches activity entries and writes them to a Client.
//
// Entries accumulate in an in-memory buffer and are written when a
// trigger fires. Nothing is dropped: on write failure the batch is
// restored ahead of newer entries and retried on the next trigger.
//
// A nil *Recorder is valid and discards all entries, so callers need
// not branch on whether the ledger is enabled.
//
// Thread safety:
//   - mu guards the buffer and trigger counters
//   - flushMu serializes flushes so batches never interleave
//   - Record holds mu briefly to append
//   - triggerFlush holds flushMu for the duration of the write,
//     and mu briefly to swap or restore the buffer
type Recorder struct {
	client Client
	config RecorderConfig
	logger *log.Logger

	mu     sync.Mutex // guards buffer and trigger counters
	buffer []Entry

	flushByCount    int64
	flushByInterval int64
	flushByShutdown int64

	// flushMu serializes flush operations.
	flushMu sync.Mutex

	// stopCh signals the interval goroutine to stop.
	stopCh chan struct{}
	// stopped indicates Close has been called. Guarded by mu.
	stopped bool
}

// NewRecorder creates a new recorder.
// Returns an error if config enables no trigger.
func NewRecorder(client Client, config RecorderConfig) (*Recorder, error) {
	if config.FlushCount <= 0 && config.FlushInterval <= 0 {
		return nil, ErrRecorderConfig
	}

	r := &Recorder{
		client: client,
		config: config,
		logger: config.Logger,
		buffer: make([]Entry, 0, 64),
		stopCh: make(chan struct{}),
	}

	if config.FlushInterval > 0 {
		go r.intervalLoop()
	}

	return r, nil
}

// Record appends an activity entry to the buffer, filling ID and Ts when
// unset. Never drops entries. If the count threshold is reached, triggers
// a flush.
func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if r == nil {
		return nil
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Ts.IsZero() {
		e.Ts = time.Now().UTC()
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, e)
	shouldFlush := r.config.FlushCount > 0 && len(r.buffer) >= r.config.FlushCount
	r.mu.Unlock()

	if shouldFlush {
		return r.triggerFlush(ctx, FlushTriggerCount)
	}
	return nil
}

// Flush writes all buffered entries.
func (r *Recorder) Flush(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.triggerFlush(ctx, FlushTriggerShutdown)
}

// RecordMetrics flushes pending activity and writes a metrics snapshot
// record, so the snapshot postdates every entry it summarizes.
func (r *Recorder) RecordMetrics(ctx context.Context, snap metrics.Snapshot) error {
	if r == nil {
		return nil
	}
	if err := r.triggerFlush(ctx, FlushTriggerShutdown); err != nil {
		return err
	}
	return r.client.WriteMetrics(ctx, snap, time.Now().UTC())
}

// Pending returns the number of buffered entries.
func (r *Recorder) Pending() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// TriggerStats returns per-trigger flush counts for observability.
func (r *Recorder) TriggerStats() map[FlushTrigger]int64 {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[FlushTrigger]int64{
		FlushTriggerCount:    r.flushByCount,
		FlushTriggerInterval: r.flushByInterval,
		FlushTriggerShutdown: r.flushByShutdown,
	}
}

// triggerFlush performs a flush with the given trigger reason.
// Serialized by flushMu to prevent concurrent writes.
//
// Strategy: swap the buffer under mu, write outside mu, restore on
// failure. Record can keep appending to the fresh buffer during a write
// without blocking on the client.
func (r *Recorder) triggerFlush(ctx context.Context, trigger FlushTrigger) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()

	switch trigger {
	case FlushTriggerCount:
		r.flushByCount++
	case FlushTriggerInterval:
		r.flushByInterval++
	case FlushTriggerShutdown:
		r.flushByShutdown++
	}

	entries := r.buffer
	if len(entries) == 0 {
		r.mu.Unlock()
		return nil
	}

	// Install a fresh buffer so recording can continue during the write
	r.buffer = make([]Entry, 0, 64)
	r.mu.Unlock()

	if err := r.client.WriteActivity(ctx, entries); err != nil {
		// Restore the batch: prepend old entries before any new ones
		r.mu.Lock()
		r.buffer = append(entries, r.buffer...)
		r.mu.Unlock()
		r.logFlushFailure(trigger, err)
		return err
	}

	r.logFlush(trigger, len(entries))
	return nil
}

// Close stops the interval goroutine, flushes, and closes the client.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.stopCh)
	}
	r.mu.Unlock()

	// Best-effort flush on close
	_ = r.Flush(context.Background())
	return r.client.Close()
}

// intervalLoop runs in a goroutine and triggers flushes on the configured
// interval.
func (r *Recorder) intervalLoop() {
	ticker := time.NewTicker(r.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.mu.Lock()
			hasData := len(r.buffer) > 0
			r.mu.Unlock()

			if hasData {
				// Interval flush failures are logged and retried later
				_ = r.triggerFlush(context.Background(), FlushTriggerInterval)
			}
		case <-r.stopCh:
			return
		}
	}
}

func (r *Recorder) logFlush(trigger FlushTrigger, entries int) {
	if r.logger == nil {
		return
	}
	r.logger.Debug("ledger flush", map[string]any{
		"trigger": string(trigger),
		"entries": entries,
	})
}

func (r *Recorder) logFlushFailure(trigger FlushTrigger, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Error("ledger flush failed", map[string]any{
		"trigger": string(trigger),
		"error":   err.Error(),
	})
}
