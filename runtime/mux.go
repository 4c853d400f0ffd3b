package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/logtail"
	"github.com/justapithecus/adit/metrics"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// DefaultPollInterval bounds one result poll in the streaming loop.
const DefaultPollInterval = time.Second

// MuxConfig configures result and log multiplexing for one call.
type MuxConfig struct {
	// Key is the call key.
	Key string
	// PollInterval bounds each result poll. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration
	// StreamLogs interleaves captured log batches into the stream.
	StreamLogs bool
	// LogsDir is the directory the call's log files are written to.
	LogsDir string
	// Logger receives streaming diagnostics.
	Logger *log.Logger
	// Collector absorbs per-call stream tallies when the stream ends.
	Collector *metrics.Collector
}

// Multiplexer interleaves one call's result chunks with its captured
// log batches. Results are forwarded the moment they arrive; log files
// are discovered lazily and flushed once per poll iteration, including
// a final flush after the terminal chunk so trailing output is not
// lost.
type Multiplexer struct {
	dispatcher *Dispatcher
	cfg        MuxConfig
}

// NewMultiplexer creates a multiplexer for one call.
func NewMultiplexer(d *Dispatcher, cfg MuxConfig) *Multiplexer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger("mux", "info")
	}
	return &Multiplexer{dispatcher: d, cfg: cfg}
}

// Stream emits the call's chunks through emit until the terminal chunk
// and final log flush are delivered. Internal failures end the stream
// with an exception chunk rather than an error; only emit failures and
// context cancellation return one. The call itself keeps running if
// the consumer goes away; a reconnecting client re-attaches through a
// new multiplexer.
func (m *Multiplexer) Stream(ctx context.Context, emit func(types.Response) error) error {
	var tailer *logtail.Tailer
	if m.cfg.StreamLogs && m.cfg.LogsDir != "" {
		t, err := logtail.New(logtail.Config{Dir: m.cfg.LogsDir, Key: m.cfg.Key})
		if err != nil {
			m.cfg.Logger.Warn("log tailing disabled", map[string]any{
				"key":   m.cfg.Key,
				"error": err.Error(),
			})
		} else {
			tailer = t
			defer tailer.Close()
		}
	}

	var chunks, stdoutBatches int64
	defer func() {
		m.cfg.Collector.AbsorbStreamStats(chunks, stdoutBatches)
	}()

	done := false
	for !done {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := m.dispatcher.CallResult(ctx, m.cfg.Key, m.cfg.PollInterval)
		switch {
		case errors.Is(err, types.ErrTimeout):
			// Still running; fall through to the log flush and poll again.
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return err
		case err != nil:
			m.cfg.Logger.Error("result poll failed", map[string]any{
				"key":   m.cfg.Key,
				"error": err.Error(),
			})
			if emitErr := emit(types.ExceptionResponse(m.cfg.Key, err)); emitErr != nil {
				return emitErr
			}
			done = true
		default:
			if resp.OutputType.IsTerminal() {
				done = true
			} else {
				chunks++
			}
			if err := emit(resp); err != nil {
				return err
			}
		}

		if tailer == nil {
			continue
		}
		lines, err := tailer.ReadNew()
		if err != nil {
			m.cfg.Logger.Warn("log read failed", map[string]any{
				"key":   m.cfg.Key,
				"error": err.Error(),
			})
			continue
		}
		if len(lines) == 0 {
			continue
		}
		data, err := wire.EncodePayload(lines)
		if err != nil {
			m.cfg.Logger.Warn("log batch encode failed", map[string]any{
				"key":   m.cfg.Key,
				"error": err.Error(),
			})
			continue
		}
		if err := emit(types.StdoutResponse(m.cfg.Key, data)); err != nil {
			return err
		}
		stdoutBatches++
	}

	if m.cfg.StreamLogs && tailer != nil && len(tailer.Paths()) == 0 {
		m.cfg.Logger.Warn("no log files found for call", map[string]any{
			"key": m.cfg.Key,
		})
	}
	return nil
}
