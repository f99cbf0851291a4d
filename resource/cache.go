// Package resource implements the keyed, revalidating fetch cache that every
// other part of the synchronization core reads from and writes to.
//
// A Cache entry holds the last value fetched (or locally mutated) for a
// composite Key, the error of the last failed fetch, and a freshness stamp.
// Reads of a fresh entry never hit the network; concurrent reads of a stale
// entry share one in-flight request. Mutate writes the entry synchronously and
// notifies subscribers before returning, which is what makes optimistic edits
// visible before any network latency.
package resource

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/creastat/consolesync"
	"github.com/creastat/consolesync/internal/clock"
)

// NoDedupe disables reuse of fetched values when set as DedupeInterval.
const NoDedupe time.Duration = -1

// Fetcher loads the authoritative value for a key.
type Fetcher func(ctx context.Context) (any, error)

// Listener is called synchronously after every change to a subscribed entry.
type Listener func(Snapshot)

// Config holds cache configuration.
type Config struct {
	// DedupeInterval is how long a fetched value is served without a new
	// request. Zero selects the default of 2 seconds; NoDedupe makes every
	// read request.
	DedupeInterval time.Duration
	Clock          clock.Clock
	Logger         *slog.Logger
}

// Snapshot is a point-in-time copy of one entry.
type Snapshot struct {
	Key       Key
	Value     any
	Present   bool
	Err       error
	Loading   bool
	FetchedAt time.Time
	Version   uint64
}

// Checkpoint records the state an optimistic Mutate replaced, so a failed
// confirmation can put it back with Restore.
type Checkpoint struct {
	key         Key
	prev        any
	prevPresent bool
	version     uint64
	applied     bool
}

// Applied reports whether the mutation changed the cache.
func (cp Checkpoint) Applied() bool { return cp.applied }

// Key returns the key the mutation was applied to.
func (cp Checkpoint) Key() Key { return cp.key }

// Cache is safe for concurrent use.
type Cache struct {
	mu          sync.Mutex
	entries     map[Digest]*entry
	subscribers map[Digest][]subscription
	nextID      uint64
	group       singleflight.Group
	dedupe      time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

type entry struct {
	key       Key
	value     any
	present   bool
	err       error
	fetchedAt time.Time
	stale     bool
	loading   bool
	version   uint64
	fetcher   Fetcher
}

type subscription struct {
	id       uint64
	listener Listener
}

// New creates an empty cache.
func New(cfg Config) *Cache {
	switch {
	case cfg.DedupeInterval == 0:
		cfg.DedupeInterval = 2 * time.Second
	case cfg.DedupeInterval < 0:
		cfg.DedupeInterval = 0
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		entries:     make(map[Digest]*entry),
		subscribers: make(map[Digest][]subscription),
		dedupe:      cfg.DedupeInterval,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
}

// Get returns the cached value for key, if any. It never fetches.
func (c *Cache) Get(key Key) (any, bool) {
	s := c.Peek(key)
	return s.Value, s.Present
}

// Peek returns a snapshot of the entry for key. Absent entries yield a
// snapshot with Present false.
func (c *Cache) Peek(key Key) Snapshot {
	if key.IsZero() {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.Digest()]; ok {
		return e.snapshot()
	}
	return Snapshot{Key: key}
}

// Len returns the number of entries, including stale ones under keys no
// longer in use.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Subscribe registers listener for changes to key and returns a func that
// removes it. Subscribing to the zero key is a no-op.
func (c *Cache) Subscribe(key Key, listener Listener) (cancel func()) {
	if key.IsZero() {
		return func() {}
	}
	d := key.Digest()
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subscribers[d] = append(c.subscribers[d], subscription{id: id, listener: listener})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			subs := c.subscribers[d]
			for i, s := range subs {
				if s.id == id {
					c.subscribers[d] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(c.subscribers[d]) == 0 {
				delete(c.subscribers, d)
			}
		})
	}
}

// Fetch returns the entry for key, issuing fetcher only when the entry is
// missing, invalidated or older than the dedupe interval. Concurrent calls for
// equal keys share one request. On failure the previous value is preserved in
// the returned snapshot and the error is a *consolesync.FetchError.
//
// The zero key returns an empty snapshot without fetching.
func (c *Cache) Fetch(ctx context.Context, key Key, fetcher Fetcher) (Snapshot, error) {
	if key.IsZero() {
		return Snapshot{}, nil
	}
	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetcher = fetcher
	if c.freshLocked(e) {
		s := e.snapshot()
		c.mu.Unlock()
		return s, nil
	}
	c.mu.Unlock()

	return c.revalidate(ctx, key, fetcher, false)
}

// Use returns the current snapshot immediately and, when the entry is not
// fresh, starts a background revalidation whose result reaches subscribers.
// The background request is not cancelled when ctx is.
func (c *Cache) Use(ctx context.Context, key Key, fetcher Fetcher) Snapshot {
	if key.IsZero() {
		return Snapshot{}
	}
	c.mu.Lock()
	e := c.entryLocked(key)
	e.fetcher = fetcher
	if c.freshLocked(e) || e.loading {
		s := e.snapshot()
		c.mu.Unlock()
		return s
	}
	e.loading = true
	s := e.snapshot()
	c.mu.Unlock()

	go func() {
		_, _ = c.revalidate(context.WithoutCancel(ctx), key, fetcher, false)
	}()
	return s
}

// Revalidate refetches key with the last fetcher registered for it. Keys that
// were never fetched are left untouched.
func (c *Cache) Revalidate(ctx context.Context, key Key) (Snapshot, error) {
	if key.IsZero() {
		return Snapshot{}, nil
	}
	c.mu.Lock()
	e, ok := c.entries[key.Digest()]
	if !ok || e.fetcher == nil {
		c.mu.Unlock()
		return c.Peek(key), nil
	}
	fetcher := e.fetcher
	c.mu.Unlock()
	return c.revalidate(ctx, key, fetcher, true)
}

// Invalidate marks the entry stale so the next Fetch goes to the network.
// The cached value stays readable until then.
func (c *Cache) Invalidate(key Key) {
	if key.IsZero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.Digest()]; ok {
		e.stale = true
	}
}

// Mutate replaces the entry for key with the updater's result. The updater
// receives the current value (present false when absent) and returns the new
// value and whether to write it; returning false leaves the cache untouched
// and creates no entry. The write happens, and subscribers are notified,
// before Mutate returns. No request is made.
//
// The updater runs without the cache lock held and may be called again if a
// concurrent write lands between its read and the write.
func (c *Cache) Mutate(key Key, updater func(current any, present bool) (any, bool)) Checkpoint {
	if key.IsZero() {
		return Checkpoint{}
	}
	d := key.Digest()
	for {
		c.mu.Lock()
		var (
			current any
			present bool
			version uint64
		)
		if e, ok := c.entries[d]; ok {
			current, present, version = e.value, e.present, e.version
		}
		c.mu.Unlock()

		next, write := updater(current, present)
		if !write {
			return Checkpoint{key: key}
		}

		c.mu.Lock()
		e, ok := c.entries[d]
		if ok && e.version != version {
			c.mu.Unlock()
			continue
		}
		if !ok {
			if version != 0 {
				c.mu.Unlock()
				continue
			}
			e = c.entryLocked(key)
		}
		e.value = next
		e.present = true
		e.version++
		cp := Checkpoint{key: key, prev: current, prevPresent: present, version: e.version, applied: true}
		s, listeners := e.snapshot(), c.listenersLocked(d)
		c.mu.Unlock()

		c.logger.Debug("cache entry mutated", "key", key.String(), "version", s.Version)
		notify(listeners, s)
		return cp
	}
}

// Set replaces the entry for key with value.
func (c *Cache) Set(key Key, value any) Checkpoint {
	return c.Mutate(key, func(any, bool) (any, bool) { return value, true })
}

// Restore rolls the entry back to the state captured by cp, but only if
// nothing has written the entry since the mutation that produced cp. It
// reports whether the rollback happened.
func (c *Cache) Restore(cp Checkpoint) bool {
	if !cp.applied {
		return false
	}
	d := cp.key.Digest()
	c.mu.Lock()
	e, ok := c.entries[d]
	if !ok || e.version != cp.version {
		c.mu.Unlock()
		return false
	}
	e.value = cp.prev
	e.present = cp.prevPresent
	e.version++
	s, listeners := e.snapshot(), c.listenersLocked(d)
	c.mu.Unlock()

	notify(listeners, s)
	return true
}

// revalidate runs fetcher through the singleflight group. Unless force is
// set, a caller that arrives after another request already refreshed the
// entry is served from the cache instead of issuing a second request.
func (c *Cache) revalidate(ctx context.Context, key Key, fetcher Fetcher, force bool) (Snapshot, error) {
	d := key.Digest()
	results := c.group.DoChan(d.String(), func() (any, error) {
		if !force && c.fresh(key) {
			c.clearLoading(key)
			return nil, nil
		}
		c.setLoading(key)
		value, err := fetcher(context.WithoutCancel(ctx))
		return nil, c.settle(key, value, err)
	})
	select {
	case res := <-results:
		return c.Peek(key), res.Err
	case <-ctx.Done():
		return c.Peek(key), ctx.Err()
	}
}

func (c *Cache) setLoading(key Key) {
	d := key.Digest()
	c.mu.Lock()
	e := c.entryLocked(key)
	if e.loading {
		c.mu.Unlock()
		return
	}
	e.loading = true
	s, listeners := e.snapshot(), c.listenersLocked(d)
	c.mu.Unlock()
	notify(listeners, s)
}

func (c *Cache) clearLoading(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[key.Digest()]; ok {
		e.loading = false
	}
}

// settle applies a finished request. The most recently settled response wins.
func (c *Cache) settle(key Key, value any, err error) error {
	d := key.Digest()
	c.mu.Lock()
	e := c.entryLocked(key)
	e.loading = false
	e.version++
	if err != nil {
		err = &consolesync.FetchError{Key: key.String(), Err: err}
		e.err = err
	} else {
		e.value = value
		e.present = true
		e.err = nil
		e.stale = false
		e.fetchedAt = c.clock.Now()
	}
	s, listeners := e.snapshot(), c.listenersLocked(d)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("fetch failed, keeping cached value",
			"key", key.String(), "has_value", s.Present, "error", err)
	} else {
		c.logger.Debug("fetch settled", "key", key.String(), "version", s.Version)
	}
	notify(listeners, s)
	return err
}

func (c *Cache) entryLocked(key Key) *entry {
	d := key.Digest()
	e, ok := c.entries[d]
	if !ok {
		e = &entry{key: key}
		c.entries[d] = e
	}
	return e
}

func (c *Cache) fresh(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.Digest()]
	return ok && c.freshLocked(e)
}

func (c *Cache) freshLocked(e *entry) bool {
	if !e.present || e.stale || e.err != nil || e.fetchedAt.IsZero() {
		return false
	}
	return c.clock.Now().Sub(e.fetchedAt) < c.dedupe
}

func (c *Cache) listenersLocked(d Digest) []Listener {
	subs := c.subscribers[d]
	listeners := make([]Listener, len(subs))
	for i, s := range subs {
		listeners[i] = s.listener
	}
	return listeners
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:       e.key,
		Value:     e.value,
		Present:   e.present,
		Err:       e.err,
		Loading:   e.loading,
		FetchedAt: e.fetchedAt,
		Version:   e.version,
	}
}

func notify(listeners []Listener, s Snapshot) {
	for _, l := range listeners {
		l(s)
	}
}
