// Package cache is the tagged query cache sitting between API consumers and
// the request pipeline. Reads are single-flight per key, entries are grouped
// by tag for bulk invalidation, and unused entries are garbage collected.
package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/schoolms/portal-client/internal/api/metrics"
	"github.com/schoolms/portal-client/internal/core/domain"
)

const (
	defaultMaxEntries = 512
	defaultGCWindow   = 60 * time.Second
)

// FetchFunc loads the payload for one query. It is supplied per call so the
// cache stays independent of the request pipeline.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Listener receives entry snapshots. Listeners must not block.
type Listener func(Snapshot)

// Notifier delivers listener callbacks. Callbacks for the same key must run in
// submission order.
type Notifier interface {
	Dispatch(key string, fn func())
}

// Snapshot is the consumer view of an entry. Data is shared and must not be
// modified.
type Snapshot struct {
	Key       string
	Data      []byte
	Err       error
	Loading   bool
	Stale     bool
	FetchedAt time.Time
}

type Options struct {
	MaxEntries int
	// GCWindow is how long an entry without subscribers survives.
	GCWindow time.Duration
	// Notifier delivers subscriber updates; nil delivers inline.
	Notifier Notifier
	Now      func() time.Time
	Log      zerolog.Logger
}

type entry struct {
	key   string
	query Query
	fetch FetchFunc

	data      []byte
	err       error
	tags      []domain.Tag
	fetchedAt time.Time
	expiresAt time.Time
	stale     bool
	loading   bool
	inflight  int

	// invalidations counts Invalidate hits. A fetch that began before the
	// latest one cannot make the entry fresh.
	invalidations uint64
	dataEpoch     uint64

	subs        map[uint64]Listener
	unusedSince time.Time
}

func (e *entry) fresh(now time.Time) bool {
	if e.fetchedAt.IsZero() || e.stale || e.err != nil {
		return false
	}
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

func (e *entry) snapshot() Snapshot {
	return Snapshot{
		Key:       e.key,
		Data:      e.data,
		Err:       e.err,
		Loading:   e.loading,
		Stale:     e.stale,
		FetchedAt: e.fetchedAt,
	}
}

type notification struct {
	key      string
	listener Listener
	snap     Snapshot
}

// Cache is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *entry]
	tags    map[domain.Tag]map[string]struct{}
	gen     uint64
	nextSub uint64
	// capacity exceeds maxEntries only while every entry has subscribers.
	maxEntries int
	capacity   int

	group    singleflight.Group
	bg       sync.WaitGroup
	gcWindow time.Duration
	notifier Notifier
	now      func() time.Time
	log      zerolog.Logger
}

func New(opts Options) (*Cache, error) {
	size := opts.MaxEntries
	if size <= 0 {
		size = defaultMaxEntries
	}
	c := &Cache{
		maxEntries: size,
		capacity:   size,
		tags:       make(map[domain.Tag]map[string]struct{}),
		gcWindow:   opts.GCWindow,
		notifier:   opts.Notifier,
		now:        opts.Now,
		log:        opts.Log.With().Str("component", "cache").Logger(),
	}
	if c.gcWindow <= 0 {
		c.gcWindow = defaultGCWindow
	}
	if c.now == nil {
		c.now = time.Now
	}
	entries, err := lru.NewWithEvict[string, *entry](size, c.onEvict)
	if err != nil {
		return nil, err
	}
	c.entries = entries
	return c, nil
}

// Read returns the cached payload for q when fresh, otherwise fetches it.
// Concurrent reads of the same key share one fetch. The shared fetch runs to
// completion even if ctx is cancelled.
func (c *Cache) Read(ctx context.Context, q Query, fetch FetchFunc) ([]byte, error) {
	key := q.Key()

	c.mu.Lock()
	e, ok := c.entries.Get(key)
	if ok && e.fresh(c.now()) {
		data := e.data
		c.mu.Unlock()
		metrics.CacheReadsTotal.WithLabelValues("hit").Inc()
		return data, nil
	}
	gen := c.gen
	c.mu.Unlock()

	if ok {
		metrics.CacheReadsTotal.WithLabelValues("stale").Inc()
	} else {
		metrics.CacheReadsTotal.WithLabelValues("miss").Inc()
	}
	return c.load(ctx, q, key, gen, fetch)
}

// Peek returns the current snapshot for key without fetching.
func (c *Cache) Peek(key string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Peek(key)
	if !ok {
		return Snapshot{}, false
	}
	return e.snapshot(), true
}

// Invalidate marks every entry carrying any of tags as stale and returns how
// many were marked. Stale data stays visible; subscribed entries are
// refetched in the background.
func (c *Cache) Invalidate(tags ...domain.Tag) int {
	c.mu.Lock()
	marked := make(map[string]*entry)
	for _, t := range tags {
		n := 0
		for key := range c.tags[t] {
			if e, ok := c.entries.Peek(key); ok {
				marked[key] = e
				n++
			}
		}
		if n > 0 {
			metrics.CacheInvalidationsTotal.WithLabelValues(string(t)).Add(float64(n))
		}
	}

	var notes []notification
	var refetch []*entry
	for key, e := range marked {
		e.stale = true
		e.invalidations++
		if e.inflight > 0 {
			// Later reads must not join a fetch that predates the mutation.
			c.group.Forget(flightKey(c.gen, key))
		}
		notes = append(notes, c.notesFor(e)...)
		if len(e.subs) > 0 && e.fetch != nil {
			refetch = append(refetch, e)
		}
	}
	gen := c.gen
	for _, e := range refetch {
		c.revalidate(e.query, e.key, gen, e.fetch)
	}
	c.mu.Unlock()

	c.emit(notes)
	if len(marked) > 0 {
		c.log.Debug().Int("entries", len(marked)).Interface("tags", tags).Msg("invalidated")
	}
	return len(marked)
}

// Mutate performs a write and, on success, invalidates tags.
func (c *Cache) Mutate(ctx context.Context, fetch FetchFunc, tags ...domain.Tag) ([]byte, error) {
	data, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	c.Invalidate(tags...)
	return data, nil
}

// Reset drops every entry. Fetches started before Reset cannot repopulate
// the cache. Subscribers receive an empty snapshot.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.gen++
	var notes []notification
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		for _, l := range e.subs {
			notes = append(notes, notification{key: key, listener: l, snap: Snapshot{Key: key}})
		}
	}
	c.entries.Purge()
	c.shrink()
	c.tags = make(map[domain.Tag]map[string]struct{})
	metrics.CacheEntries.Set(0)
	c.mu.Unlock()

	c.emit(notes)
	c.log.Debug().Msg("cache reset")
}

// Subscribe registers listener for q and starts a fetch when the entry is
// missing or not fresh. The listener receives the current snapshot first.
// The returned function unsubscribes and is safe to call more than once.
func (c *Cache) Subscribe(q Query, fetch FetchFunc, listener Listener) func() {
	key := q.Key()

	c.mu.Lock()
	e := c.getOrCreate(key, q)
	e.fetch = fetch
	c.nextSub++
	id := c.nextSub
	e.subs[id] = listener
	e.unusedSince = time.Time{}
	need := !e.fresh(c.now()) && !e.loading
	first := notification{key: key, listener: listener, snap: e.snapshot()}
	gen := c.gen
	c.mu.Unlock()

	c.emit([]notification{first})
	if need {
		c.revalidate(q, key, gen, fetch)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(e.subs, id)
			if len(e.subs) == 0 {
				e.unusedSince = c.now()
			}
		})
	}
}

// Collect evicts entries that have had no subscribers for longer than their
// GC window, regardless of expiry. It returns the number evicted.
func (c *Cache) Collect() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, key := range c.entries.Keys() {
		e, ok := c.entries.Peek(key)
		if !ok || len(e.subs) > 0 || e.loading || e.unusedSince.IsZero() {
			continue
		}
		window := e.query.KeepUnusedFor
		if window <= 0 {
			window = c.gcWindow
		}
		if now.Sub(e.unusedSince) >= window {
			c.entries.Remove(key)
			n++
		}
	}
	c.shrink()
	if n > 0 {
		metrics.CacheEntries.Set(float64(c.entries.Len()))
		c.log.Debug().Int("evicted", n).Msg("gc sweep")
	}
	return n
}

// Run sweeps unused entries periodically until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	interval := c.gcWindow / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

// Wait blocks until background revalidations have finished.
func (c *Cache) Wait() {
	c.bg.Wait()
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// load runs fetch through the per-key flight. The flight key carries the
// reset generation.
func (c *Cache) load(ctx context.Context, q Query, key string, gen uint64, fetch FetchFunc) ([]byte, error) {
	ch := c.group.DoChan(flightKey(gen, key), func() (any, error) {
		began, epoch := c.begin(q, key, gen)
		data, err := fetch(context.WithoutCancel(ctx))
		c.finish(q, key, gen, began, epoch, fetch, data, err)
		return data, err
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.CacheReadsTotal.WithLabelValues("shared").Inc()
		}
		data, _ := res.Val.([]byte)
		return data, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// revalidate starts a background load.
func (c *Cache) revalidate(q Query, key string, gen uint64, fetch FetchFunc) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		if _, err := c.load(context.Background(), q, key, gen, fetch); err != nil {
			c.log.Debug().Err(err).Str("key", key).Msg("background revalidation failed")
		}
	}()
}

func flightKey(gen uint64, key string) string {
	return strconv.FormatUint(gen, 10) + ":" + key
}

// begin marks the entry loading and returns it with its invalidation count.
func (c *Cache) begin(q Query, key string, gen uint64) (*entry, uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return nil, 0
	}
	e := c.getOrCreate(key, q)
	e.inflight++
	e.loading = true
	epoch := e.invalidations
	notes := c.notesFor(e)
	c.mu.Unlock()
	c.emit(notes)
	return e, epoch
}

func (c *Cache) finish(q Query, key string, gen uint64, began *entry, epoch uint64, fetch FetchFunc, data []byte, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	e := c.getOrCreate(key, q)
	if e == began {
		e.inflight--
	} else {
		// The entry was evicted mid-fetch; the result is current for its successor.
		epoch = e.invalidations
	}
	e.loading = e.inflight > 0
	e.fetch = fetch
	e.query = q
	switch {
	case epoch < e.dataEpoch:
		// A fetch started after a later invalidation already landed.
	case err != nil:
		// Prior data stays visible next to the error.
		e.err = err
		c.log.Debug().Err(err).Str("key", key).Msg("fetch failed")
	default:
		now := c.now()
		e.data = data
		e.err = nil
		e.dataEpoch = epoch
		e.stale = epoch < e.invalidations
		e.fetchedAt = now
		e.expiresAt = time.Time{}
		if q.TTL > 0 {
			e.expiresAt = now.Add(q.TTL)
		}
		c.retag(e, q.Tags)
	}
	notes := c.notesFor(e)
	c.mu.Unlock()
	c.emit(notes)
}

// getOrCreate returns the entry for key, inserting an empty one when absent.
// Callers hold c.mu.
func (c *Cache) getOrCreate(key string, q Query) *entry {
	if e, ok := c.entries.Get(key); ok {
		return e
	}
	if c.entries.Len() >= c.capacity {
		c.makeRoom()
	}
	e := &entry{
		key:         key,
		query:       q,
		subs:        make(map[uint64]Listener),
		unusedSince: c.now(),
	}
	c.entries.Add(key, e)
	c.retag(e, q.Tags)
	metrics.CacheEntries.Set(float64(c.entries.Len()))
	return e
}

// makeRoom evicts the least recently used entry without subscribers. When
// every entry is subscribed the bound grows by one instead. Callers hold c.mu.
func (c *Cache) makeRoom() {
	for _, key := range c.entries.Keys() {
		if e, ok := c.entries.Peek(key); ok && len(e.subs) == 0 {
			c.entries.Remove(key)
			return
		}
	}
	c.capacity++
	c.entries.Resize(c.capacity)
	c.log.Debug().Int("capacity", c.capacity).Msg("all entries subscribed; bound raised")
}

// shrink restores the configured bound once the entries fit again. Callers
// hold c.mu.
func (c *Cache) shrink() {
	if c.capacity > c.maxEntries && c.entries.Len() <= c.maxEntries {
		c.capacity = c.maxEntries
		c.entries.Resize(c.capacity)
	}
}

// retag replaces the tag set of e in the index. Callers hold c.mu.
func (c *Cache) retag(e *entry, tags []domain.Tag) {
	c.untag(e)
	e.tags = append([]domain.Tag(nil), tags...)
	for _, t := range e.tags {
		keys, ok := c.tags[t]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[t] = keys
		}
		keys[e.key] = struct{}{}
	}
}

func (c *Cache) untag(e *entry) {
	for _, t := range e.tags {
		keys := c.tags[t]
		delete(keys, e.key)
		if len(keys) == 0 {
			delete(c.tags, t)
		}
	}
}

// onEvict runs synchronously inside lru calls, which are only made with c.mu
// held, so it must not lock.
func (c *Cache) onEvict(_ string, e *entry) {
	c.untag(e)
}

func (c *Cache) notesFor(e *entry) []notification {
	if len(e.subs) == 0 {
		return nil
	}
	snap := e.snapshot()
	notes := make([]notification, 0, len(e.subs))
	for _, l := range e.subs {
		notes = append(notes, notification{key: e.key, listener: l, snap: snap})
	}
	return notes
}

func (c *Cache) emit(notes []notification) {
	for _, n := range notes {
		n := n
		if c.notifier == nil {
			n.listener(n.snap)
			continue
		}
		c.notifier.Dispatch(n.key, func() { n.listener(n.snap) })
	}
}
