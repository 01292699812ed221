// Package mutations issues writes against the API and reconciles the
// session's cache afterwards.
package mutations

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"civicsync-fe/cache"
	"civicsync-fe/metrics"
)

var (
	ErrInFlight       = errors.New("a change to this item is already in progress")
	ErrTicketNotFound = errors.New("confirmation not found or expired")
	ErrTicketSettled  = errors.New("confirmation already answered")
)

// Phase is where a mutation is in its lifecycle.
type Phase string

const (
	Idle       Phase = "idle"
	Confirming Phase = "confirming"
	Pending    Phase = "pending"
	Success    Phase = "success"
	Failed     Phase = "failed"
)

// Strategy is how the cache is reconciled with a write.
type Strategy int

const (
	// InvalidateAfter marks keys stale once the write succeeds.
	InvalidateAfter Strategy = iota
	// Optimistic patches the cached collection first and restores it if the write fails.
	Optimistic
)

// Patch is a local change applied to a cached collection before the write resolves.
type Patch struct {
	key   cache.Key
	apply func(c *cache.Cache) (undo func(), ok bool)
}

// PatchList builds a Patch that rewrites the collection cached under key.
func PatchList[T any](key cache.Key, fn func([]T) []T) Patch {
	return Patch{
		key: key,
		apply: func(c *cache.Cache) (func(), bool) {
			snapshot, ok := cache.Update(c, key, fn)
			if !ok {
				return func() {}, false
			}
			return func() { cache.Restore(c, key, snapshot) }, true
		},
	}
}

// Mutation is one write and the cache keys it affects.
type Mutation struct {
	Action string
	// Entity scopes the in-flight guard, e.g. "issue/<id>".
	Entity string
	// Prompt, when set, requires an explicit confirmation before Write runs.
	Prompt string
	// Guard re-checks the rules against fresh data when a prompt is confirmed.
	// A rejection settles the ticket as failed without calling Write.
	Guard      func(ctx context.Context) error
	Strategy   Strategy
	Patches    []Patch
	Invalidate []cache.Key
	Write      func(ctx context.Context) error
	// Result is returned to the caller on success, e.g. a checkout URL.
	Result func() any
}

// Ticket tracks a mutation from the confirm prompt to its settlement.
type Ticket struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	Prompt    string    `json:"prompt,omitempty"`
	Phase     Phase     `json:"phase"`
	Error     string    `json:"error,omitempty"`
	Result    any       `json:"result,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	mutation Mutation
}

// Coordinator runs the mutations of one session.
type Coordinator struct {
	cache     *cache.Cache
	logger    *log.Entry
	ticketTTL time.Duration
	timeout   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	tickets map[string]*Ticket
	active  map[string]*Ticket
}

func NewCoordinator(c *cache.Cache, writeTimeout time.Duration, logger *log.Entry) *Coordinator {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}
	return &Coordinator{
		cache:     c,
		logger:    logger.WithField("component", "mutations"),
		ticketTTL: 10 * time.Minute,
		timeout:   writeTimeout,
		now:       time.Now,
		tickets:   make(map[string]*Ticket),
		active:    make(map[string]*Ticket),
	}
}

// Busy reports whether a write for entity is outstanding.
func (co *Coordinator) Busy(entity string) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	t, ok := co.active[entity]
	return ok && t.Phase == Pending
}

// Submit starts m. A mutation with a Prompt stops in the Confirming phase and
// waits for Resolve; anything else is written immediately.
func (co *Coordinator) Submit(ctx context.Context, m Mutation) (Ticket, error) {
	co.mu.Lock()
	co.expireLocked()

	if cur, ok := co.active[m.Entity]; ok {
		switch {
		case cur.Phase == Pending:
			co.mu.Unlock()
			return cur.snapshot(), ErrInFlight
		case cur.Action == m.Action && cur.Prompt == m.Prompt:
			co.mu.Unlock()
			return cur.snapshot(), nil
		default:
			// a different prompt for the same item replaces the unanswered one
			cur.Phase = Idle
			delete(co.active, m.Entity)
		}
	}

	t := &Ticket{
		ID:        uuid.NewString(),
		Action:    m.Action,
		Entity:    m.Entity,
		Prompt:    m.Prompt,
		Phase:     Confirming,
		CreatedAt: co.now(),
		mutation:  m,
	}
	co.tickets[t.ID] = t
	co.active[m.Entity] = t

	if m.Prompt != "" {
		snap := t.snapshot()
		co.mu.Unlock()
		return snap, nil
	}
	t.Phase = Pending
	co.mu.Unlock()
	return co.execute(ctx, t)
}

// Resolve answers a confirmation prompt. Declining returns the item to idle
// without any network call.
func (co *Coordinator) Resolve(ctx context.Context, ticketID string, confirmed bool) (Ticket, error) {
	co.mu.Lock()
	co.expireLocked()

	t, ok := co.tickets[ticketID]
	if !ok {
		co.mu.Unlock()
		return Ticket{}, ErrTicketNotFound
	}
	if t.Phase != Confirming {
		snap := t.snapshot()
		co.mu.Unlock()
		return snap, ErrTicketSettled
	}
	if !confirmed {
		t.Phase = Idle
		delete(co.active, t.Entity)
		snap := t.snapshot()
		co.mu.Unlock()
		metrics.RecordMutation(t.Action, "cancelled")
		return snap, nil
	}
	t.Phase = Pending
	co.mu.Unlock()

	if guard := t.mutation.Guard; guard != nil {
		if err := guard(ctx); err != nil {
			co.logger.WithError(err).WithFields(log.Fields{"action": t.Action, "entity": t.Entity, "ticket": t.ID}).
				Warn("confirmation refused")
			metrics.RecordMutation(t.Action, "refused")
			return co.settle(t, Failed, err, nil), err
		}
	}
	return co.execute(ctx, t)
}

// Ticket looks up a ticket by id.
func (co *Coordinator) Ticket(id string) (Ticket, bool) {
	co.mu.Lock()
	defer co.mu.Unlock()
	t, ok := co.tickets[id]
	if !ok {
		return Ticket{}, false
	}
	return t.snapshot(), true
}

func (co *Coordinator) execute(ctx context.Context, t *Ticket) (Ticket, error) {
	m := t.mutation
	logger := co.logger.WithFields(log.Fields{"action": m.Action, "entity": m.Entity, "ticket": t.ID})

	var undo []func()
	if m.Strategy == Optimistic {
		for _, p := range m.Patches {
			if restore, ok := p.apply(co.cache); ok {
				undo = append(undo, restore)
			}
		}
	}

	// the write settles even if the caller goes away
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), co.timeout)
	err := m.Write(wctx)
	cancel()

	if err != nil {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		if m.Strategy == Optimistic {
			co.cache.Invalidate(m.Invalidate...)
		}
		logger.WithError(err).Error("mutation failed")
		sentry.CaptureException(fmt.Errorf("%s %s: %w", m.Action, m.Entity, err))
		metrics.RecordMutation(m.Action, string(Failed))
		return co.settle(t, Failed, err, nil), err
	}

	co.cache.Invalidate(m.Invalidate...)
	var result any
	if m.Result != nil {
		result = m.Result()
	}
	logger.Info("mutation applied")
	metrics.RecordMutation(m.Action, string(Success))
	return co.settle(t, Success, nil, result), nil
}

func (co *Coordinator) settle(t *Ticket, phase Phase, err error, result any) Ticket {
	co.mu.Lock()
	defer co.mu.Unlock()
	t.Phase = phase
	t.Result = result
	if err != nil {
		t.Error = err.Error()
	}
	if co.active[t.Entity] == t {
		delete(co.active, t.Entity)
	}
	return t.snapshot()
}

// expireLocked forgets old settled tickets and unanswered prompts.
func (co *Coordinator) expireLocked() {
	cutoff := co.now().Add(-co.ticketTTL)
	for id, t := range co.tickets {
		if t.Phase == Pending || t.CreatedAt.After(cutoff) {
			continue
		}
		delete(co.tickets, id)
		if co.active[t.Entity] == t {
			delete(co.active, t.Entity)
		}
	}
}

func (t *Ticket) snapshot() Ticket {
	out := *t
	out.mutation = Mutation{}
	return out
}
