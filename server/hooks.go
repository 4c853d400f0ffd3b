package server

import (
	"context"
	"time"

	"github.com/justapithecus/adit/adapter"
	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/runtime"
	"github.com/justapithecus/adit/store"
	"github.com/justapithecus/adit/types"
	"github.com/justapithecus/adit/wire"
)

// DefaultPublishTimeout bounds one completion publish.
const DefaultPublishTimeout = 10 * time.Second

// CompletionConfig wires the completion hook's collaborators.
type CompletionConfig struct {
	// Registry locates the environment the finished call ran in.
	Registry *runtime.Registry
	// Disk persists saved results. Nil disables write-through.
	Disk *store.Disk
	// Publisher receives completion events. Nil disables publishing.
	Publisher adapter.Adapter
	// PublishTimeout bounds one publish. Zero means
	// DefaultPublishTimeout.
	PublishTimeout time.Duration
	// Logger receives hook diagnostics.
	Logger *log.Logger
}

// CompletionHook builds the dispatcher completion callback: persist
// saved results, then publish the completion event. It runs on the
// call's goroutine after the terminal transition, with no request
// context left, so publishing gets its own bounded one.
func CompletionHook(cfg CompletionConfig) runtime.CompletionFunc {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewLogger("completion", "info")
	}

	return func(rec types.RunRecord, msg *types.Message) {
		if msg != nil && msg.Save && rec.Status == types.RunStatusDone && rec.Error == "" {
			saveResult(cfg, rec)
		}
		if cfg.Publisher == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.PublishTimeout)
		defer cancel()
		if err := cfg.Publisher.Publish(ctx, adapter.FromRecord(rec)); err != nil {
			cfg.Logger.Warn("completion publish failed", map[string]any{
				"key":   rec.Key,
				"error": err.Error(),
			})
		}
	}
}

// saveResult mirrors a finished call's result and run record to disk.
func saveResult(cfg CompletionConfig, rec types.RunRecord) {
	if cfg.Disk == nil || cfg.Registry == nil {
		return
	}
	env, err := cfg.Registry.Resolve(rec.Env)
	if err != nil {
		cfg.Logger.Warn("save skipped, env gone", map[string]any{
			"key": rec.Key,
			"env": rec.Env,
		})
		return
	}
	v, ok := env.Store().GetNow(rec.Key)
	if !ok {
		cfg.Logger.Warn("save skipped, result missing", map[string]any{
			"key": rec.Key,
		})
		return
	}
	data, err := wire.EncodePayload(v)
	if err != nil {
		cfg.Logger.Warn("save skipped, result not serializable", map[string]any{
			"key":   rec.Key,
			"error": err.Error(),
		})
		return
	}
	if err := cfg.Disk.Save(rec.Env, rec.Key, data); err != nil {
		cfg.Logger.Warn("result save failed", map[string]any{
			"key":   rec.Key,
			"error": err.Error(),
		})
		return
	}
	if data, err = wire.EncodePayload(rec); err == nil {
		if err := cfg.Disk.Save(rec.Env, types.RefKey(rec.Key), data); err != nil {
			cfg.Logger.Warn("run record save failed", map[string]any{
				"key":   rec.Key,
				"error": err.Error(),
			})
		}
	}
}
