// Package cache is a declarative registry of cached queries and invalidating
// mutations.
//
// Each query provides tags for the results it caches; each mutation names the
// tags it invalidates. After a mutation succeeds every cached result sharing a
// tag is marked stale, and results that views are subscribed to are refetched
// in the background. Reads of cached values are synchronous.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"blogCPT/internal/clock"
)

type Kind string

const (
	KindQuery    Kind = "query"
	KindMutation Kind = "mutation"
)

type EndpointInfo struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

type State int

const (
	StateMissing State = iota
	StateFresh
	StateStale
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	}
	return "missing"
}

type Options struct {
	Clock  clock.Clock
	Logger logrus.FieldLogger
	// RevalidateAfter is the default age past which a cached result is
	// refetched on the next read. Zero or negative disables it.
	RevalidateAfter time.Duration
	// KeepUnusedFor is how long a result nobody reads or subscribes to stays
	// cached. Zero means 60 seconds, negative keeps results until evicted by
	// MaxEntries.
	KeepUnusedFor time.Duration
	// MaxEntries caps the number of cached results; the least recently read
	// unsubscribed ones go first. Zero means 1000, negative means no cap.
	MaxEntries int
}

const (
	defaultKeepUnusedFor = 60 * time.Second
	defaultMaxEntries    = 1000
)

type Cache struct {
	mu              sync.Mutex
	clock           clock.Clock
	log             logrus.FieldLogger
	revalidateAfter time.Duration
	keepUnusedFor   time.Duration
	maxEntries      int

	endpoints map[string]Kind
	entries   map[string]*entry
	watchers  map[string]*watcher
	// tagVersions holds the generation of each tag's last invalidation.
	tagVersions map[Tag]uint64
	generation  uint64
	nextSubID   uint64

	group      singleflight.Group
	background sync.WaitGroup
}

type entry struct {
	tags      []Tag
	value     any
	fetchedAt time.Time
	usedAt    time.Time
	maxAge    time.Duration
	stale     bool
}

// watcher tracks the live subscriptions of one cache key and knows how to
// refetch it.
type watcher struct {
	tags    []Tag
	subs    map[uint64]*subscriber
	refetch func()
}

type subscriber struct {
	active  bool
	deliver func(value any, err error)
}

func New(opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.Logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		opts.Logger = l
	}
	if opts.KeepUnusedFor == 0 {
		opts.KeepUnusedFor = defaultKeepUnusedFor
	}
	if opts.MaxEntries == 0 {
		opts.MaxEntries = defaultMaxEntries
	}
	return &Cache{
		clock:           opts.Clock,
		log:             opts.Logger,
		revalidateAfter: opts.RevalidateAfter,
		keepUnusedFor:   opts.KeepUnusedFor,
		maxEntries:      opts.MaxEntries,
		endpoints:       make(map[string]Kind),
		entries:         make(map[string]*entry),
		watchers:        make(map[string]*watcher),
		tagVersions:     make(map[Tag]uint64),
	}
}

func (c *Cache) register(name string, kind Kind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.endpoints[name]; exists {
		panic(fmt.Sprintf("cache: endpoint %q registered twice", name))
	}
	c.endpoints[name] = kind
}

// Endpoints lists the registered queries and mutations by name.
func (c *Cache) Endpoints() []EndpointInfo {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]EndpointInfo, 0, len(c.endpoints))
	for name, kind := range c.endpoints {
		out = append(out, EndpointInfo{Name: name, Kind: kind})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invalidate marks every cached result carrying one of tags as stale and
// schedules a refetch for the subscribed ones.
func (c *Cache) Invalidate(tags ...Tag) {
	if len(tags) == 0 {
		return
	}

	c.mu.Lock()
	c.generation++
	for _, t := range tags {
		c.tagVersions[t] = c.generation
	}

	marked := 0
	for _, e := range c.entries {
		if !e.stale && intersects(e.tags, tags) {
			e.stale = true
			marked++
		}
	}

	var refetches []func()
	for _, w := range c.watchers {
		if len(w.subs) > 0 && intersects(w.tags, tags) {
			refetches = append(refetches, w.refetch)
		}
	}
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{
		"tags":      tags,
		"stale":     marked,
		"refetches": len(refetches),
	}).Debug("cache invalidated")

	for _, refetch := range refetches {
		c.background.Add(1)
		go func(refetch func()) {
			defer c.background.Done()
			refetch()
		}(refetch)
	}
}

// Wait blocks until background refetches started so far have finished.
func (c *Cache) Wait() {
	c.background.Wait()
}

// versionOf is the latest invalidation generation among tags. Callers hold c.mu.
func (c *Cache) versionOf(tags []Tag) uint64 {
	var v uint64
	for _, t := range tags {
		v = max(v, c.tagVersions[t])
	}
	return v
}

// Len reports how many results are cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops unsubscribed results left unread for keepUnusedFor, then
// the least recently read ones above maxEntries, and forgets the versions of
// tags nothing refers to any more. Callers hold c.mu.
func (c *Cache) evictLocked(now time.Time) {
	var idle []string
	for key, e := range c.entries {
		if _, watched := c.watchers[key]; watched {
			continue
		}
		if c.keepUnusedFor > 0 && now.Sub(e.usedAt) >= c.keepUnusedFor {
			delete(c.entries, key)
			continue
		}
		idle = append(idle, key)
	}

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		sort.Slice(idle, func(i, j int) bool {
			return c.entries[idle[i]].usedAt.Before(c.entries[idle[j]].usedAt)
		})
		for _, key := range idle {
			if len(c.entries) <= c.maxEntries {
				break
			}
			delete(c.entries, key)
		}
	}

	live := make(map[Tag]struct{}, len(c.tagVersions))
	for _, e := range c.entries {
		for _, t := range e.tags {
			live[t] = struct{}{}
		}
	}
	for _, w := range c.watchers {
		for _, t := range w.tags {
			live[t] = struct{}{}
		}
	}
	for t := range c.tagVersions {
		if _, ok := live[t]; !ok {
			delete(c.tagVersions, t)
		}
	}
}

func (c *Cache) lookup(key string) (any, State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, StateMissing
	}
	e.usedAt = c.clock.Now()
	if e.stale || c.expired(e) {
		return e.value, StateStale
	}
	return e.value, StateFresh
}

func (c *Cache) expired(e *entry) bool {
	if e.maxAge <= 0 {
		return false
	}
	return c.clock.Now().Sub(e.fetchedAt) >= e.maxAge
}

// fetch runs fn once per key and tag generation, then caches the result
// unless it failed. A result whose tags were invalidated while it was in
// flight is cached as stale. The shared call ignores the cancellation of the
// caller that started it; each caller stops waiting when its own ctx ends.
func (c *Cache) fetch(ctx context.Context, key string, tags []Tag, maxAge time.Duration, fn func(context.Context) (any, error)) (any, error) {
	c.mu.Lock()
	version := c.versionOf(tags)
	c.mu.Unlock()

	flightCtx := context.WithoutCancel(ctx)
	flight := fmt.Sprintf("%s#%d", key, version)
	ch := c.group.DoChan(flight, func() (any, error) {
		c.log.WithField("key", key).Debug("cache fetch")

		value, err := fn(flightCtx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		now := c.clock.Now()
		c.entries[key] = &entry{
			tags:      tags,
			value:     value,
			fetchedAt: now,
			usedAt:    now,
			maxAge:    maxAge,
			stale:     c.versionOf(tags) > version,
		}
		c.evictLocked(now)
		c.mu.Unlock()

		return value, nil
	})

	select {
	case <-ctx.Done():
		return nil, storeError(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			c.log.WithFields(logrus.Fields{"key": key, "shared": res.Shared}).WithError(res.Err).Warn("cache fetch failed")
			return nil, storeError(res.Err)
		}
		return res.Val, nil
	}
}

func (c *Cache) subscribe(key string, tags []Tag, refetch func(), deliver func(any, error)) (uint64, *subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.watchers[key]
	if !ok {
		w = &watcher{tags: tags, subs: make(map[uint64]*subscriber), refetch: refetch}
		c.watchers[key] = w
	}

	c.nextSubID++
	sub := &subscriber{active: true, deliver: deliver}
	w.subs[c.nextSubID] = sub
	return c.nextSubID, sub
}

func (c *Cache) unsubscribe(key string, id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.watchers[key]
	if !ok {
		return
	}
	if sub, ok := w.subs[id]; ok {
		sub.active = false
		delete(w.subs, id)
	}
	if len(w.subs) == 0 {
		delete(c.watchers, key)
	}
}

// notify delivers a refetched result to every live subscriber of key.
func (c *Cache) notify(key string, value any, err error) {
	c.mu.Lock()
	w, ok := c.watchers[key]
	var subs []*subscriber
	if ok {
		for _, sub := range w.subs {
			subs = append(subs, sub)
		}
	}
	c.mu.Unlock()

	for _, sub := range subs {
		c.deliver(sub, value, err)
	}
}

// deliver hands a result to sub unless it unsubscribed while the fetch was in flight.
func (c *Cache) deliver(sub *subscriber, value any, err error) {
	c.mu.Lock()
	active := sub.active
	c.mu.Unlock()

	if active {
		sub.deliver(value, err)
	}
}
