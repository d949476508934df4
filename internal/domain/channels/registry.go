package channels

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry caches channel configuration process-wide. The snapshot is
// replaced wholesale on Reload; it is never patched in place.
type Registry struct {
	src    Source
	logger *zap.SugaredLogger

	mu       sync.RWMutex
	snapshot map[Key]Config
	loadedAt time.Time
}

func NewRegistry(src Source, logger *zap.SugaredLogger) *Registry {
	return &Registry{src: src, logger: logger}
}

func (r *Registry) Lookup(ctx context.Context, clientID int64, channel, payWay string) (Config, error) {
	r.mu.RLock()
	snap := r.snapshot
	r.mu.RUnlock()

	if snap == nil {
		if err := r.Reload(ctx); err != nil {
			return Config{}, err
		}
		r.mu.RLock()
		snap = r.snapshot
		r.mu.RUnlock()
	}

	cfg, ok := snap[Key{ClientID: clientID, Channel: channel, PayWay: payWay}]
	if !ok {
		return Config{}, fmt.Errorf("%w: channel=%s pay_way=%s", ErrNotConfigured, channel, payWay)
	}
	return cfg, nil
}

func (r *Registry) Reload(ctx context.Context) error {
	all, err := r.src.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("reload channel registry: %w", err)
	}

	next := make(map[Key]Config, len(all))
	for _, c := range all {
		next[c.Key()] = c
	}

	r.mu.Lock()
	r.snapshot = next
	r.loadedAt = time.Now()
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Infow("channel registry reloaded", "entries", len(next))
	}
	return nil
}

// Invalidate drops the snapshot; the next Lookup reloads.
func (r *Registry) Invalidate() {
	r.mu.Lock()
	r.snapshot = nil
	r.mu.Unlock()
}

func (r *Registry) Entries() []Config {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Config, 0, len(r.snapshot))
	for _, c := range r.snapshot {
		out = append(out, c)
	}
	return out
}

func (r *Registry) LoadedAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loadedAt
}

// StaticSource serves a fixed set of configurations.
type StaticSource []Config

func (s StaticSource) LoadAll(context.Context) ([]Config, error) {
	out := make([]Config, len(s))
	copy(out, s)
	return out, nil
}
