package session

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"civicsync-fe/cache"
	"civicsync-fe/mutations"
	"civicsync-fe/paginator"
)

// Workspace is the in-memory state of one browser session: its cache, its
// mutation coordinator and the pagination state of every list it has shown.
type Workspace struct {
	ID          string
	Cache       *cache.Cache
	Coordinator *mutations.Coordinator

	mu       sync.Mutex
	pagers   map[string]*paginator.Paginator
	lastSeen time.Time
}

func newWorkspace(id string, fetchTimeout, maxAge time.Duration, now time.Time) *Workspace {
	logger := log.WithField("session", id)
	c := cache.New(fetchTimeout, logger).WithMaxAge(maxAge)
	return &Workspace{
		ID:          id,
		Cache:       c,
		Coordinator: mutations.NewCoordinator(c, fetchTimeout, logger),
		pagers:      make(map[string]*paginator.Paginator),
		lastSeen:    now,
	}
}

// WithPager runs fn while holding the workspace lock so concurrent requests
// from the same session do not interleave page changes.
func (w *Workspace) WithPager(view string, allowed []int, defaultSize int, fn func(p *paginator.Paginator) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pagers[view]
	if !ok {
		p = paginator.New(allowed, defaultSize)
		w.pagers[view] = p
	}
	return fn(p)
}

// Forget drops cached data and list positions, e.g. when the user signs out.
func (w *Workspace) Forget() {
	w.Cache.Reset()
	w.mu.Lock()
	w.pagers = make(map[string]*paginator.Paginator)
	w.mu.Unlock()
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}
