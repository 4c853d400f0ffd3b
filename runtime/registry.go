package runtime

import (
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/metrics"
	"github.com/justapithecus/adit/types"
)

// DefaultEnvName is the environment used when a call names none and
// its key has no owner.
const DefaultEnvName = "base"

// RegistryConfig configures the environment registry.
type RegistryConfig struct {
	// DefaultEnv overrides the fallback environment name. Empty means
	// DefaultEnvName.
	DefaultEnv string
	// LogsRoot is the directory environments write call logs under,
	// one subdirectory per environment. Empty disables log capture.
	LogsRoot string
	// Concurrency is the per-environment call bound applied when
	// environment options carry none.
	Concurrency int
	// Seed lists modules installed into every new environment. Each
	// environment receives its own copy.
	Seed []*Module
	// Logger receives registry lifecycle logs.
	Logger *log.Logger
	// Collector counts environment creations.
	Collector *metrics.Collector
}

// Registry owns the named environments. Creation is idempotent by
// name: concurrent GetOrCreate calls for one name observe a single
// environment, and options apply only on the call that wins creation.
type Registry struct {
	cfg RegistryConfig

	mu   sync.RWMutex
	envs map[string]*Environment
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.DefaultEnv == "" {
		cfg.DefaultEnv = DefaultEnvName
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger("registry", "info")
	}
	return &Registry{
		cfg:  cfg,
		envs: make(map[string]*Environment),
	}
}

// Default returns the default environment name.
func (r *Registry) Default() string {
	return r.cfg.DefaultEnv
}

// Resolve returns the named environment without creating it. An empty
// name means the default environment, which is still only returned if
// it already exists.
func (r *Registry) Resolve(name string) (*Environment, error) {
	if name == "" {
		name = r.cfg.DefaultEnv
	}
	r.mu.RLock()
	env, ok := r.envs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, types.EnvNotFound("resolve", name)
	}
	return env, nil
}

// GetOrCreate returns the named environment, creating it with default
// options if absent.
func (r *Registry) GetOrCreate(name string) (*Environment, error) {
	return r.GetOrCreateWith(types.EnvOptions{Name: name})
}

// GetOrCreateWith returns the environment named in opts, creating and
// configuring it if absent. Options are ignored when the environment
// already exists.
func (r *Registry) GetOrCreateWith(opts types.EnvOptions) (*Environment, error) {
	name := opts.Name
	if name == "" {
		name = r.cfg.DefaultEnv
	}
	if err := validateEnvName(name); err != nil {
		return nil, err
	}

	r.mu.RLock()
	env, ok := r.envs[name]
	r.mu.RUnlock()
	if ok {
		return env, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if env, ok := r.envs[name]; ok {
		return env, nil
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = r.cfg.Concurrency
	}
	env = NewEnvironment(EnvConfig{
		Name:        name,
		LogsDir:     r.logsDirFor(name),
		Concurrency: concurrency,
		Vars:        opts.Vars,
		Packages:    opts.Packages,
		Logger:      r.cfg.Logger,
	})
	for _, mod := range r.cfg.Seed {
		env.Store().Put(mod.Name(), mod.Clone())
	}
	r.envs[name] = env
	r.cfg.Collector.IncEnvCreated()
	r.cfg.Logger.Info("environment created", map[string]any{
		"env":         name,
		"concurrency": env.Concurrency(),
	})
	return env, nil
}

// EnvForKey returns the environment owning key, checking both the key
// itself and its run record.
func (r *Registry) EnvForKey(key string) (*Environment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, env := range r.envs {
		if env.Store().Contains(key) || env.Store().Contains(types.RefKey(key)) {
			return env, true
		}
	}
	return nil, false
}

// Names returns the sorted environment names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.envs))
	for name := range r.envs {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// KeyCounts returns the number of stored keys per environment.
func (r *Registry) KeyCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int, len(r.envs))
	for name, env := range r.envs {
		counts[name] = env.Store().Len()
	}
	return counts
}

// logsDirFor builds the per-environment log directory. Names are
// escaped the same way the disk store escapes them, so an environment
// name can never climb out of the logs root.
func (r *Registry) logsDirFor(name string) string {
	if r.cfg.LogsRoot == "" {
		return ""
	}
	return filepath.Join(r.cfg.LogsRoot, url.PathEscape(name))
}

// validateEnvName rejects names that cannot double as directory names.
func validateEnvName(name string) error {
	if name == "" {
		return fmt.Errorf("environment name must not be empty")
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return fmt.Errorf("invalid environment name %q", name)
	}
	return nil
}
