package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/justapithecus/adit/types"
)

// Event is one observed step of a call: a partial value, or the
// terminal outcome.
type Event struct {
	// Value is the partial value, or the terminal result.
	Value any
	// Terminal marks the end of the stream.
	Terminal bool
	// Err is the terminal failure; nil on success. Only set on
	// terminal events.
	Err error
}

// Handle tracks one in-flight call. Its producer goroutine pushes
// partial values and exactly one terminal outcome; consumers poll Next
// with a bounded wait. The first terminal wins and later ones are
// dropped. The terminal outcome stays readable after the queue drains,
// so a client that reconnects still observes how the call ended.
type Handle struct {
	key string

	mu          sync.Mutex
	queue       []any
	status      types.RunStatus
	terminating bool
	result      any
	err         error
	changed     chan struct{}
	cancel      context.CancelFunc
	cancelReq   bool
	started     time.Time
	ended       time.Time

	onTransition func(*Handle, types.RunStatus)
}

func newHandle(key string, cancel context.CancelFunc, onTransition func(*Handle, types.RunStatus)) *Handle {
	return &Handle{
		key:          key,
		status:       types.RunStatusPending,
		changed:      make(chan struct{}),
		cancel:       cancel,
		started:      time.Now().UTC(),
		onTransition: onTransition,
	}
}

// Key returns the call key.
func (h *Handle) Key() string {
	return h.key
}

// Status returns the current lifecycle state.
func (h *Handle) Status() types.RunStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Result returns the terminal value; nil while the call is running.
func (h *Handle) Result() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Err returns the terminal failure; nil while running or on success.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// StartedAt returns when the call was launched.
func (h *Handle) StartedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.started
}

// EndedAt returns when the call ended; zero while in flight.
func (h *Handle) EndedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ended
}

// Cancel requests termination. After a terminal outcome it is a no-op.
// Mid-flight it cancels the call context; the runner records the
// cancellation once the callable returns.
func (h *Handle) Cancel() {
	h.mu.Lock()
	if h.status.IsTerminal() {
		h.mu.Unlock()
		return
	}
	h.cancelReq = true
	cancel := h.cancel
	h.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CancelRequested reports whether Cancel was called before the call
// ended.
func (h *Handle) CancelRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelReq
}

// push appends a partial value. Values pushed after the terminal
// outcome are dropped.
func (h *Handle) push(v any) {
	h.mu.Lock()
	if h.status.IsTerminal() {
		h.mu.Unlock()
		return
	}
	transitioned := h.status == types.RunStatusPending
	if transitioned {
		h.status = types.RunStatusStreaming
	}
	h.queue = append(h.queue, v)
	h.notifyLocked()
	h.mu.Unlock()
	if transitioned {
		h.fireTransition(types.RunStatusStreaming)
	}
}

// finish records the terminal result.
func (h *Handle) finish(v any) {
	h.terminate(types.RunStatusDone, v, nil)
}

// fail records the terminal failure. A cancellation failure moves the
// handle to cancelled rather than done.
func (h *Handle) fail(err error) {
	status := types.RunStatusDone
	if errors.Is(err, types.ErrCancelled) {
		status = types.RunStatusCancelled
	}
	h.terminate(status, nil, err)
}

// terminate records the outcome. The transition callback runs before
// the terminal state becomes observable, so record and store updates
// land before any consumer sees the outcome.
func (h *Handle) terminate(status types.RunStatus, v any, err error) {
	h.mu.Lock()
	if h.terminating || h.status.IsTerminal() {
		h.mu.Unlock()
		return
	}
	h.terminating = true
	h.result = v
	h.err = err
	h.ended = time.Now().UTC()
	h.mu.Unlock()

	h.fireTransition(status)

	h.mu.Lock()
	h.status = status
	h.notifyLocked()
	h.mu.Unlock()
}

func (h *Handle) fireTransition(status types.RunStatus) {
	if h.onTransition != nil {
		h.onTransition(h, status)
	}
}

// notifyLocked wakes bounded-wait consumers. Callers hold mu.
func (h *Handle) notifyLocked() {
	close(h.changed)
	h.changed = make(chan struct{})
}

// Next returns the next event, waiting up to wait for one to arrive.
// Queued partial values are delivered in order before the terminal
// outcome; once the queue drains, the terminal event is returned on
// every call. types.ErrTimeout reports that nothing arrived in time.
func (h *Handle) Next(ctx context.Context, wait time.Duration) (Event, error) {
	h.mu.Lock()
	ev, ok := h.takeLocked()
	ch := h.changed
	h.mu.Unlock()
	if ok {
		return ev, nil
	}
	if wait <= 0 {
		return Event{}, types.Timeout("poll")
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		select {
		case <-ch:
			h.mu.Lock()
			ev, ok = h.takeLocked()
			ch = h.changed
			h.mu.Unlock()
			if ok {
				return ev, nil
			}
		case <-timer.C:
			return Event{}, types.Timeout("poll")
		case <-ctx.Done():
			return Event{}, ctx.Err()
		}
	}
}

// Wait blocks until the call ends and returns the terminal outcome.
// Queued partial values are left for other consumers.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	for {
		h.mu.Lock()
		if h.status.IsTerminal() {
			v, err := h.result, h.err
			h.mu.Unlock()
			return v, err
		}
		ch := h.changed
		h.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// takeLocked pops the next queued value or surfaces the terminal
// event. Callers hold mu.
func (h *Handle) takeLocked() (Event, bool) {
	if len(h.queue) > 0 {
		v := h.queue[0]
		h.queue = h.queue[1:]
		return Event{Value: v}, true
	}
	if h.status.IsTerminal() {
		return Event{Value: h.result, Terminal: true, Err: h.err}, true
	}
	return Event{}, false
}
