package viewer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry keeps one Viewer per browser session.
type Registry struct {
	fetcher Fetcher
	logger  *zap.Logger

	mu      sync.Mutex
	viewers map[string]*Viewer
}

// NewRegistry creates an empty Registry whose viewers share f.
func NewRegistry(f Fetcher, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		fetcher: f,
		logger:  logger,
		viewers: make(map[string]*Viewer),
	}
}

// Get returns the Viewer for key, creating it on first use.
func (r *Registry) Get(key string) *Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.viewers[key]
	if !ok {
		v = New(r.fetcher, r.logger)
		r.viewers[key] = v
	}
	return v
}

// Remove drops the Viewer for key.
func (r *Registry) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.viewers, key)
}

// Len returns the number of live viewers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.viewers)
}

// Sweep removes viewers unused for longer than maxIdle and returns how
// many were removed. Viewers with a lookup in flight are kept.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for key, v := range r.viewers {
		state, _ := v.Snapshot()
		if state.IsLoading() || !v.idleSince().Before(cutoff) {
			continue
		}
		delete(r.viewers, key)
		removed++
	}
	if removed > 0 {
		r.logger.Debug("swept idle viewers", zap.Int("removed", removed))
	}
	return removed
}
