// Package runtime executes gateway calls. Environments own an object
// store and a bounded pool of running calls, callables run detached
// from the request that launched them, and handles multiplex partial
// results and the terminal outcome back to polling clients.
package runtime

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/justapithecus/adit/types"
)

// Callable is an invocable unit installed in an environment. Args and
// kwargs arrive decoded from the wire; anything written to out is
// captured into the call's log file for streaming. A callable that
// returns a Sequence has each element delivered as a partial result
// chunk before the terminal result.
type Callable interface {
	Call(ctx context.Context, out io.Writer, args []any, kwargs map[string]any) (any, error)
}

// CallableFunc adapts a function to the Callable interface.
type CallableFunc func(ctx context.Context, out io.Writer, args []any, kwargs map[string]any) (any, error)

// Call invokes the function.
func (f CallableFunc) Call(ctx context.Context, out io.Writer, args []any, kwargs map[string]any) (any, error) {
	return f(ctx, out, args, kwargs)
}

// Sequence is a lazily produced result stream.
type Sequence interface {
	// Next returns the next element. ok is false once the sequence is
	// exhausted; a non-nil err aborts the stream.
	Next(ctx context.Context) (v any, ok bool, err error)
}

// SliceSequence streams a fixed slice.
type SliceSequence struct {
	items []any
	idx   int
}

// NewSliceSequence builds a sequence over items.
func NewSliceSequence(items []any) *SliceSequence {
	return &SliceSequence{items: items}
}

// Next returns the next element of the slice.
func (s *SliceSequence) Next(ctx context.Context) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.idx >= len(s.items) {
		return nil, false, nil
	}
	v := s.items[s.idx]
	s.idx++
	return v, true, nil
}

// Module groups named callables under one store key. Clients address a
// method as POST /{module}/{method}.
type Module struct {
	name string

	mu      sync.RWMutex
	methods map[string]Callable
}

// NewModule creates an empty module.
func NewModule(name string) *Module {
	return &Module{
		name:    name,
		methods: make(map[string]Callable),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return m.name
}

// Register installs a method. An existing method with the same name is
// replaced.
func (m *Module) Register(method string, c Callable) {
	m.mu.Lock()
	m.methods[method] = c
	m.mu.Unlock()
}

// RegisterFunc installs a function as a method.
func (m *Module) RegisterFunc(method string, f CallableFunc) {
	m.Register(method, f)
}

// Method returns the named callable.
func (m *Module) Method(method string) (Callable, bool) {
	m.mu.RLock()
	c, ok := m.methods[method]
	m.mu.RUnlock()
	return c, ok
}

// Methods returns the sorted method names.
func (m *Module) Methods() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.methods))
	for name := range m.methods {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Describe returns the resource descriptor served when a module key is
// fetched as an object.
func (m *Module) Describe() types.ResourceConfig {
	return types.ResourceConfig{
		Name: m.name,
		Type: types.ResourceTypeModule,
		Config: map[string]any{
			"methods": m.Methods(),
		},
	}
}

// Clone returns an independent module with the same methods. Each
// environment receives its own copy at seeding so later registrations
// stay local to one environment.
func (m *Module) Clone() *Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	clone := NewModule(m.name)
	for name, c := range m.methods {
		clone.methods[name] = c
	}
	return clone
}
