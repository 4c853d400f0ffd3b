package auth

import (
	"context"
	"errors"

	"github.com/justapithecus/adit/log"
	"github.com/justapithecus/adit/metrics"
	"github.com/justapithecus/adit/types"
)

// Gate authorizes operations against resources. Answers come from the
// cache when present, otherwise from the authority, and every denial
// is uniform: callers cannot tell an absent resource from one they
// lack access to.
//
// A nil Gate grants everything, so call sites need no enabled checks.
type Gate struct {
	authority Authority
	cache     *Cache
	collector *metrics.Collector
	logger    *log.Logger
}

// NewGate creates a gate backed by the given authority. The collector
// and logger may be nil.
func NewGate(authority Authority, collector *metrics.Collector, logger *log.Logger) *Gate {
	return &Gate{
		authority: authority,
		cache:     NewCache(),
		collector: collector,
		logger:    logger,
	}
}

// Authorize checks that credential holds required on resource.
// Returns nil when granted, an AccessDenied error otherwise. Authority
// failures deny without caching, so a later check consults the
// authority again.
func (g *Gate) Authorize(ctx context.Context, credential, resource string, required Level) error {
	if g == nil {
		return nil
	}
	g.collector.IncAuthCheck()

	level, err := g.lookup(ctx, credential, resource)
	if err != nil {
		g.warn("authority lookup failed", map[string]any{
			"resource": resource,
			"error":    err.Error(),
		})
		g.collector.IncAuthDenial()
		return types.AccessDenied("authorize", resource)
	}
	if !level.Covers(required) {
		g.collector.IncAuthDenial()
		return types.AccessDenied("authorize", resource)
	}
	return nil
}

// AuthorizeInvoke checks the right to invoke a callable stored at
// resource inside env. Write on the resource itself grants invocation;
// failing that, write on the environment grants invocation on anything
// it contains. Read on the environment grants nothing here.
func (g *Gate) AuthorizeInvoke(ctx context.Context, credential, resource, env string) error {
	if g == nil {
		return nil
	}
	g.collector.IncAuthCheck()

	level, err := g.lookup(ctx, credential, resource)
	if err == nil && level.Covers(LevelWrite) {
		return nil
	}

	envLevel, envErr := g.lookup(ctx, credential, env)
	if envErr == nil && envLevel == LevelWrite {
		return nil
	}

	if err != nil || envErr != nil {
		g.warn("authority lookup failed", map[string]any{
			"resource": resource,
			"error":    errors.Join(err, envErr).Error(),
		})
	}
	g.collector.IncAuthDenial()
	return types.AccessDenied("invoke", resource)
}

// Refresh re-fetches every cached pair from the authority, replacing
// stale answers. Pairs the authority cannot answer keep their cached
// level; their errors are joined into the return value.
func (g *Gate) Refresh(ctx context.Context) error {
	if g == nil || g.authority == nil {
		return nil
	}
	g.collector.IncAuthRefresh()

	var errs []error
	for _, pair := range g.cache.pairs() {
		level, err := g.authority.Check(ctx, pair.credential, pair.resource)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		g.cache.Set(pair.credential, pair.resource, level)
	}
	return errors.Join(errs...)
}

// Invalidate drops the cached answer for the pair, forcing the next
// check to consult the authority.
func (g *Gate) Invalidate(credential, resource string) {
	if g == nil {
		return
	}
	g.cache.Invalidate(credential, resource)
}

// CacheLen returns the number of cached permission entries.
func (g *Gate) CacheLen() int {
	if g == nil {
		return 0
	}
	return g.cache.Len()
}

// lookup returns the level for the pair, from cache or authority.
// A nil authority grants write on everything; the open-gate mode for
// deployments without an authority service.
func (g *Gate) lookup(ctx context.Context, credential, resource string) (Level, error) {
	if g.authority == nil {
		return LevelWrite, nil
	}
	if level, ok := g.cache.Get(credential, resource); ok {
		g.collector.IncAuthCacheHit()
		return level, nil
	}
	g.collector.IncAuthCacheMiss()

	level, err := g.authority.Check(ctx, credential, resource)
	if err != nil {
		return LevelNone, err
	}
	g.cache.Set(credential, resource, level)
	return level, nil
}

func (g *Gate) warn(msg string, fields map[string]any) {
	if g.logger != nil {
		g.logger.Warn(msg, fields)
	}
}
