package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"

	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/store"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// DefaultConcurrency bounds simultaneous calls in an environment when
// no explicit limit is configured.
const DefaultConcurrency = 32

// EnvConfig configures an environment at creation.
type EnvConfig struct {
	// Name is the environment name.
	Name string
	// LogsDir is where call log files are written. Empty disables log
	// capture.
	LogsDir string
	// Concurrency bounds simultaneous calls. Zero means
	// DefaultConcurrency.
	Concurrency int
	// Vars are environment variables visible to callables.
	Vars map[string]string
	// Packages are the declared dependencies recorded at creation.
	Packages []string
	// Logger receives environment lifecycle logs.
	Logger *log.Logger
}

// Environment is a named execution namespace: an object store, a logs
// directory, and a bounded pool of running calls. Calls launched here
// are detached from the request that started them; only an explicit
// cancellation ends one early.
type Environment struct {
	name     string
	store    *store.Store
	logsDir  string
	packages []string
	sem      chan struct{}
	logger   *log.Logger

	mu   sync.RWMutex
	vars map[string]string
}

// NewEnvironment creates an environment.
func NewEnvironment(cfg EnvConfig) *Environment {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewLogger("env", "info")
	}
	vars := make(map[string]string, len(cfg.Vars))
	for k, v := range cfg.Vars {
		vars[k] = v
	}
	return &Environment{
		name:     cfg.Name,
		store:    store.New(),
		logsDir:  cfg.LogsDir,
		packages: append([]string(nil), cfg.Packages...),
		sem:      make(chan struct{}, concurrency),
		logger:   logger.With(map[string]any{"env": cfg.Name}),
		vars:     vars,
	}
}

// Name returns the environment name.
func (e *Environment) Name() string {
	return e.name
}

// Store returns the environment's object store.
func (e *Environment) Store() *store.Store {
	return e.store
}

// LogsDir returns the directory call logs are written to.
func (e *Environment) LogsDir() string {
	return e.logsDir
}

// Packages returns the dependencies declared at creation.
func (e *Environment) Packages() []string {
	return append([]string(nil), e.packages...)
}

// Concurrency returns the call bound.
func (e *Environment) Concurrency() int {
	return cap(e.sem)
}

// InFlight returns the number of calls currently holding an execution
// slot.
func (e *Environment) InFlight() int {
	return len(e.sem)
}

// Vars returns a copy of the environment variables.
func (e *Environment) Vars() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	vars := make(map[string]string, len(e.vars))
	for k, v := range e.vars {
		vars[k] = v
	}
	return vars
}

// Var returns one environment variable.
func (e *Environment) Var(name string) (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	v, ok := e.vars[name]
	return v, ok
}

// SetVars merges vars into the environment.
func (e *Environment) SetVars(vars map[string]string) {
	e.mu.Lock()
	for k, v := range vars {
		e.vars[k] = v
	}
	e.mu.Unlock()
}

// Launch starts the callable detached from ctx: request cancellation
// does not end the call, only Handle.Cancel does. The returned handle
// observes partial values and the terminal outcome; onTransition fires
// on every status change.
func (e *Environment) Launch(ctx context.Context, key string, c Callable, args *wire.CallArgs, onTransition func(*Handle, types.RunStatus)) *Handle {
	callCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h := newHandle(key, cancel, onTransition)
	go e.run(callCtx, h, c, args)
	return h
}

func (e *Environment) run(ctx context.Context, h *Handle, c Callable, args *wire.CallArgs) {
	defer func() {
		if r := recover(); r != nil {
			h.fail(types.InvocationFailure(h.key, fmt.Errorf("panic: %v", r), string(debug.Stack())))
			e.logger.Error("call panicked", map[string]any{
				"key":   h.key,
				"panic": fmt.Sprint(r),
			})
		}
	}()

	select {
	case e.sem <- struct{}{}:
		defer func() { <-e.sem }()
	case <-ctx.Done():
		h.fail(e.classify(h, ctx.Err()))
		return
	}

	out := e.openLog(h.key)
	defer func() {
		if err := out.Close(); err != nil {
			e.logger.Warn("log close failed", map[string]any{
				"key":   h.key,
				"error": err.Error(),
			})
		}
	}()

	result, err := c.Call(ctx, out, argsOf(args), kwargsOf(args))
	if err != nil {
		h.fail(e.classify(h, err))
		return
	}

	if seq, ok := result.(Sequence); ok {
		e.drain(ctx, h, seq)
		return
	}
	h.finish(result)
}

// drain streams a sequence: each element becomes a partial value, and
// the terminal result carries the collected elements.
func (e *Environment) drain(ctx context.Context, h *Handle, seq Sequence) {
	var collected []any
	for {
		v, ok, err := seq.Next(ctx)
		if err != nil {
			h.fail(e.classify(h, err))
			return
		}
		if !ok {
			h.finish(collected)
			return
		}
		collected = append(collected, v)
		h.push(v)
	}
}

// classify converts a callable error into its gateway classification.
// Context errors after a cancellation request become a cancellation
// failure; already-classified errors pass through.
func (e *Environment) classify(h *Handle, err error) error {
	if h.CancelRequested() && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return types.Cancelled(h.key)
	}
	var typed *types.Error
	if types.AsError(err, &typed) {
		return err
	}
	return types.InvocationFailure(h.key, err, "")
}

// openLog opens the call's log file for append. Capture degrades to
// discard when the file cannot be opened; the call itself proceeds.
func (e *Environment) openLog(key string) io.WriteCloser {
	if e.logsDir == "" {
		return nopWriteCloser{io.Discard}
	}
	if err := os.MkdirAll(e.logsDir, 0o755); err != nil {
		e.logger.Warn("log dir create failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return nopWriteCloser{io.Discard}
	}
	path := filepath.Join(e.logsDir, key+".out")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		e.logger.Warn("log open failed", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return nopWriteCloser{io.Discard}
	}
	return f
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func argsOf(a *wire.CallArgs) []any {
	if a == nil {
		return nil
	}
	return a.Args
}

func kwargsOf(a *wire.CallArgs) map[string]any {
	if a == nil {
		return nil
	}
	return a.Kwargs
}
