package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/metrics"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// DefaultGetWait bounds one result poll when the caller does not say.
const DefaultGetWait = time.Second

// ErrAlreadyRunning reports an invoke against a key whose previous call
// has not reached a terminal state yet.
var ErrAlreadyRunning = errors.New("already in flight")

// CompletionFunc observes a finished call. The record carries the
// terminal status; msg is the message that started the call.
type CompletionFunc func(rec types.RunRecord, msg *types.Message)

// DispatcherConfig configures the dispatcher.
type DispatcherConfig struct {
	// GetWait is the default bounded wait for result polls. Zero means
	// DefaultGetWait.
	GetWait time.Duration
	// Logger receives dispatch lifecycle logs.
	Logger *log.Logger
	// Collector counts call lifecycle metrics.
	Collector *metrics.Collector
	// OnComplete, when set, is invoked after each call reaches a
	// terminal status.
	OnComplete CompletionFunc
}

// Dispatcher launches calls and owns their handles. Invoke returns as
// soon as the call is running; results are observed by polling
// CallResult or by streaming through a Multiplexer.
type Dispatcher struct {
	registry *Registry
	cfg      DispatcherConfig

	mu      sync.RWMutex
	handles map[string]*Handle
}

// NewDispatcher creates a dispatcher over the registry.
func NewDispatcher(registry *Registry, cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger("dispatcher", "info")
	}
	return &Dispatcher{
		registry: registry,
		cfg:      cfg,
		handles:  make(map[string]*Handle),
	}
}

// Registry returns the environment registry the dispatcher runs over.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// TargetEnv names the environment a call for module would run in,
// without creating anything. The explicit message env wins; then the
// default environment when it already holds the module; then whichever
// environment owns the module or the call key; then the default. The
// default is preferred over the ownership scan because seeded modules
// exist everywhere and the scan order over environments is unspecified.
func (d *Dispatcher) TargetEnv(msg *types.Message, module string) string {
	if msg != nil && msg.Env != "" {
		return msg.Env
	}
	if env, err := d.registry.Resolve(""); err == nil && env.Store().Contains(module) {
		return env.Name()
	}
	if env, ok := d.registry.EnvForKey(module); ok {
		return env.Name()
	}
	if msg != nil && msg.Key != "" {
		if env, ok := d.registry.EnvForKey(msg.Key); ok {
			return env.Name()
		}
	}
	return d.registry.Default()
}

func (d *Dispatcher) envFor(msg *types.Message, module string) (*Environment, error) {
	return d.registry.GetOrCreate(d.TargetEnv(msg, module))
}

// Invoke validates the message, resolves its environment and target,
// and launches the call. It returns the call key once the run record
// is in place; it never waits for the callable. The module and its
// method must already exist in the resolved environment.
func (d *Dispatcher) Invoke(ctx context.Context, module, method string, msg *types.Message) (string, error) {
	if module == "" {
		return "", fmt.Errorf("call missing module")
	}
	if method == "" {
		return "", fmt.Errorf("call missing method")
	}
	if err := msg.Validate(); err != nil {
		return "", err
	}

	key := msg.Key
	if key == "" {
		key = types.GenerateKey(module, method)
	}
	if h, ok := d.Handle(key); ok && !h.Status().IsTerminal() {
		return "", fmt.Errorf("call %s: %w", key, ErrAlreadyRunning)
	}

	resolved := *msg
	resolved.Key = key
	env, err := d.envFor(&resolved, module)
	if err != nil {
		return "", err
	}

	v, ok := env.Store().GetNow(module)
	if !ok {
		return "", types.KeyNotFound("call", module)
	}
	mod, ok := v.(*Module)
	if !ok {
		return "", types.InvocationFailure(key, fmt.Errorf("object %q is not a module", module), "")
	}
	callable, ok := mod.Method(method)
	if !ok {
		return "", types.KeyNotFound("call", module+"."+method)
	}

	args, err := wire.DecodeArgs(msg.Data)
	if err != nil {
		return "", err
	}

	env.Store().Put(types.RefKey(key), types.RunRecord{
		Key:       key,
		Module:    module,
		Method:    method,
		Env:       env.Name(),
		Status:    types.RunStatusPending,
		StartedAt: time.Now().UTC(),
	})

	h := env.Launch(ctx, key, callable, args, func(h *Handle, status types.RunStatus) {
		d.onTransition(env, msg, module, method, h, status)
	})

	d.mu.Lock()
	d.handles[key] = h
	d.mu.Unlock()

	d.cfg.Collector.IncCallStarted()
	d.cfg.Logger.Info("call dispatched", map[string]any{
		"key":    key,
		"module": module,
		"method": method,
		"env":    env.Name(),
	})
	return key, nil
}

// onTransition keeps the stored run record in step with the handle and
// reports terminal outcomes.
func (d *Dispatcher) onTransition(env *Environment, msg *types.Message, module, method string, h *Handle, status types.RunStatus) {
	key := h.Key()
	rec := types.RunRecord{
		Key:       key,
		Module:    module,
		Method:    method,
		Env:       env.Name(),
		Status:    status,
		StartedAt: h.StartedAt(),
	}
	if status.IsTerminal() {
		rec.EndedAt = h.EndedAt()
		if err := h.Err(); err != nil {
			rec.Error = err.Error()
		}
	}
	env.Store().Put(types.RefKey(key), rec)

	if !status.IsTerminal() {
		return
	}

	switch {
	case status == types.RunStatusCancelled:
		d.cfg.Collector.IncCallCancelled()
	case h.Err() != nil:
		d.cfg.Collector.IncCallFailed()
	default:
		env.Store().Put(key, h.Result())
		d.cfg.Collector.IncCallCompleted()
	}

	d.cfg.Logger.Info("call finished", map[string]any{
		"key":    key,
		"status": string(status),
		"env":    env.Name(),
	})
	if d.cfg.OnComplete != nil {
		d.cfg.OnComplete(rec, msg)
	}
}

// Handle returns the live handle for key.
func (d *Dispatcher) Handle(key string) (*Handle, bool) {
	d.mu.RLock()
	h, ok := d.handles[key]
	d.mu.RUnlock()
	return h, ok
}

// CallResult returns the next response chunk for the call, waiting up
// to wait for one. Zero wait uses the configured default. A timeout
// while the call is still running reports types.ErrTimeout so the
// caller can poll again. A terminal failure is delivered as an
// exception chunk, not an error.
func (d *Dispatcher) CallResult(ctx context.Context, key string, wait time.Duration) (types.Response, error) {
	h, ok := d.Handle(key)
	if !ok {
		return types.Response{}, types.KeyNotFound("poll", key)
	}
	if wait <= 0 {
		wait = d.getWait()
	}

	ev, err := h.Next(ctx, wait)
	if err != nil {
		return types.Response{}, err
	}
	if ev.Terminal {
		if ev.Err != nil {
			return types.ExceptionResponse(key, ev.Err), nil
		}
		data, err := wire.EncodePayload(ev.Value)
		if err != nil {
			return types.Response{}, fmt.Errorf("encode result for %s: %w", key, err)
		}
		return types.ResultResponse(key, data), nil
	}
	data, err := wire.EncodePayload(ev.Value)
	if err != nil {
		return types.Response{}, fmt.Errorf("encode chunk for %s: %w", key, err)
	}
	return types.StreamResponse(key, data), nil
}

// Cancel requests termination of the call. Cancelling a finished call
// is a no-op; an unknown key is KeyNotFound.
func (d *Dispatcher) Cancel(key string) error {
	h, ok := d.Handle(key)
	if !ok {
		return types.KeyNotFound("cancel", key)
	}
	h.Cancel()
	d.cfg.Logger.Info("cancellation requested", map[string]any{"key": key})
	return nil
}

// Active returns the number of calls that have not reached a terminal
// state.
func (d *Dispatcher) Active() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, h := range d.handles {
		if !h.Status().IsTerminal() {
			n++
		}
	}
	return n
}

// CancelAll requests termination of every live call and returns how
// many were still running. Used at shutdown.
func (d *Dispatcher) CancelAll() int {
	d.mu.RLock()
	handles := make([]*Handle, 0, len(d.handles))
	for _, h := range d.handles {
		handles = append(handles, h)
	}
	d.mu.RUnlock()

	n := 0
	for _, h := range handles {
		if !h.Status().IsTerminal() {
			h.Cancel()
			n++
		}
	}
	return n
}

func (d *Dispatcher) getWait() time.Duration {
	if d.cfg.GetWait > 0 {
		return d.cfg.GetWait
	}
	return DefaultGetWait
}
