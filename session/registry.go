package session

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"civicsync-fe/metrics"
)

// Registry owns the workspaces of all live sessions and evicts idle ones.
type Registry struct {
	idleTTL      time.Duration
	fetchTimeout time.Duration
	cacheMaxAge  time.Duration
	now          func() time.Time

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

func NewRegistry(idleTTL, fetchTimeout, cacheMaxAge time.Duration) *Registry {
	return &Registry{
		idleTTL:      idleTTL,
		fetchTimeout: fetchTimeout,
		cacheMaxAge:  cacheMaxAge,
		now:          time.Now,
		workspaces:   make(map[string]*Workspace),
	}
}

// Get returns the workspace for id, creating an empty one if needed.
func (r *Registry) Get(id string) *Workspace {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	ws, ok := r.workspaces[id]
	if !ok {
		ws = newWorkspace(id, r.fetchTimeout, r.cacheMaxAge, now)
		r.workspaces[id] = ws
		metrics.SetWorkspaces(len(r.workspaces))
		return ws
	}
	ws.touch(now)
	return ws
}

func (r *Registry) Drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workspaces, id)
	metrics.SetWorkspaces(len(r.workspaces))
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Sweep evicts workspaces that have been idle longer than the idle TTL.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.idleTTL)
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, ws := range r.workspaces {
		if ws.idleSince().Before(cutoff) {
			delete(r.workspaces, id)
			n++
		}
	}
	metrics.SetWorkspaces(len(r.workspaces))
	return n
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	interval := r.idleTTL / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.WithField("evicted", n).Info("evicted idle workspaces")
			}
		}
	}
}
