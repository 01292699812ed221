// Package cache keeps the last-known copy of each remote collection a view
// reads, keyed by resource and scope, and refetches after invalidation.
package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"civicsync-fe/metrics"
)

// ErrDiscarded is reported to a reader whose context ended before the fetch
// settled. The fetch itself still completes and is stored.
var ErrDiscarded = errors.New("cache: reader went away before the fetch settled")

// FetchFunc loads a whole collection. It must not have side effects.
type FetchFunc[T any] func(ctx context.Context) ([]T, error)

// State is what a view renders from.
type State[T any] struct {
	Data      []T
	IsLoading bool
	IsError   bool
	Err       error
	FetchedAt time.Time
}

type entry struct {
	data      any
	hasData   bool
	err       error
	stale     bool
	fetching  int
	fetchedAt time.Time

	// generation is bumped on every invalidation; storedGen is the generation
	// of the fetch whose result is currently held.
	generation uint64
	storedGen  uint64
}

// Cache is one session's shared view of remote collections.
type Cache struct {
	mu      sync.Mutex
	entries map[Key]*entry
	group   singleflight.Group
	timeout time.Duration
	maxAge  time.Duration
	logger  *log.Entry
}

func New(fetchTimeout time.Duration, logger *log.Entry) *Cache {
	if fetchTimeout <= 0 {
		fetchTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = log.WithField("component", "cache")
	}
	return &Cache{
		entries: make(map[Key]*entry),
		timeout: fetchTimeout,
		logger:  logger,
	}
}

// WithMaxAge makes entries older than d count as stale. Zero disables ageing.
func (c *Cache) WithMaxAge(d time.Duration) *Cache {
	c.mu.Lock()
	c.maxAge = d
	c.mu.Unlock()
	return c
}

// must be called with c.mu held
func (c *Cache) fresh(e *entry) bool {
	if !e.hasData || e.stale || e.err != nil {
		return false
	}
	return c.maxAge == 0 || time.Since(e.fetchedAt) < c.maxAge
}

// must be called with c.mu held
func (c *Cache) entry(key Key) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// Query returns the cached collection for key, fetching it first when it is
// missing, stale or errored. Concurrent readers of the same key share one fetch.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch FetchFunc[T]) State[T] {
	c.mu.Lock()
	e := c.entry(key)
	if c.fresh(e) {
		st := stateOf[T](e)
		c.mu.Unlock()
		metrics.RecordCacheRead(key.Resource, "hit")
		return st
	}
	gen := e.generation
	c.mu.Unlock()

	flight := fmt.Sprintf("%s#%d", key, gen)
	ch := c.group.DoChan(flight, func() (any, error) {
		c.mu.Lock()
		c.entry(key).fetching++
		c.mu.Unlock()

		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		data, err := fetchWithRetry(fetchCtx, fetch)
		c.store(key, gen, data, err)
		return nil, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.RecordCacheRead(key.Resource, "shared")
		} else {
			metrics.RecordCacheRead(key.Resource, "miss")
		}
		c.mu.Lock()
		st := stateOf[T](c.entry(key))
		c.mu.Unlock()
		if res.Err != nil {
			st.IsError = true
			st.Err = res.Err
		}
		return st
	case <-ctx.Done():
		metrics.RecordCacheRead(key.Resource, "discarded")
		st := Peek[T](c, key)
		st.IsLoading = true
		st.Err = ErrDiscarded
		return st
	}
}

func fetchWithRetry[T any](ctx context.Context, fetch FetchFunc[T]) ([]T, error) {
	data, err := fetch(ctx)
	if err != nil && ctx.Err() == nil {
		data, err = fetch(ctx)
	}
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = []T{}
	}
	return data, nil
}

func (c *Cache) store(key Key, gen uint64, data any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	e.fetching--
	if gen < e.storedGen {
		return
	}
	if err != nil {
		metrics.RecordFetchError(key.Resource)
		c.logger.WithError(err).WithField("key", key.String()).Warn("fetch failed")
		e.err = err
		return
	}
	e.data = data
	e.hasData = true
	e.err = nil
	e.storedGen = gen
	e.fetchedAt = time.Now()
	// An invalidation that landed while this fetch was in flight keeps the entry stale.
	e.stale = gen != e.generation
}

// Peek returns the current state for key without fetching.
func Peek[T any](c *Cache, key Key) State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return State[T]{Data: []T{}}
	}
	return stateOf[T](e)
}

// must be called with c.mu held
func stateOf[T any](e *entry) State[T] {
	st := State[T]{
		Data:      []T{},
		IsLoading: e.fetching > 0,
		IsError:   e.err != nil,
		Err:       e.err,
		FetchedAt: e.fetchedAt,
	}
	if data, ok := e.data.([]T); ok && e.hasData {
		st.Data = slices.Clone(data)
	}
	return st
}

// Invalidate marks every entry selected by the patterns stale so the next
// read refetches it. It returns the number of entries touched.
func (c *Cache) Invalidate(patterns ...Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for key, e := range c.entries {
		for _, p := range patterns {
			if key.Matches(p) {
				e.stale = true
				e.generation++
				n++
				metrics.RecordInvalidation(key.Resource)
				break
			}
		}
	}
	return n
}

// Update applies fn to a copy of the cached collection and stores the result.
// It returns the collection as it was before, for Restore. ok is false when
// nothing has been loaded for key yet.
func Update[T any](c *Cache, key Key, fn func([]T) []T) (snapshot []T, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, found := c.entries[key]
	if !found || !e.hasData {
		return nil, false
	}
	current, typed := e.data.([]T)
	if !typed {
		return nil, false
	}
	snapshot = slices.Clone(current)
	e.data = fn(slices.Clone(current))
	return snapshot, true
}

// Restore puts a snapshot taken by Update back in place.
func Restore[T any](c *Cache, key Key, snapshot []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && e.hasData {
		e.data = slices.Clone(snapshot)
	}
}

// Set seeds key with data, as if it had just been fetched.
func Set[T any](c *Cache, key Key, data []T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.entry(key)
	e.data = slices.Clone(data)
	e.hasData = true
	e.err = nil
	e.stale = false
	e.storedGen = e.generation
	e.fetchedAt = time.Now()
}

// Reset drops every entry, e.g. on sign-out.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.entries {
		// Bump the generation so in-flight fetches cannot repopulate a dropped entry.
		c.entries[key] = &entry{generation: e.generation + 1, storedGen: e.generation + 1, fetching: e.fetching}
	}
}
