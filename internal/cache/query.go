package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type QueryOptions[A, R any] struct {
	Fetch func(ctx context.Context, arg A) (R, error)
	// Key identifies the cached result for arg. Defaults to fmt's %v of arg.
	Key      func(arg A) string
	Provides func(arg A) []Tag
	// RevalidateAfter overrides the cache-wide window. Negative disables it.
	RevalidateAfter time.Duration
}

// Query is a typed, cached read endpoint.
type Query[A, R any] struct {
	c    *Cache
	name string
	opts QueryOptions[A, R]
}

// DefineQuery registers a query endpoint under name. It panics when name is
// already taken or no Fetch is given.
func DefineQuery[A, R any](c *Cache, name string, opts QueryOptions[A, R]) *Query[A, R] {
	if opts.Fetch == nil {
		panic(fmt.Sprintf("cache: query %q has no fetch function", name))
	}
	c.register(name, KindQuery)
	return &Query[A, R]{c: c, name: name, opts: opts}
}

func (q *Query[A, R]) Name() string { return q.name }

func (q *Query[A, R]) key(arg A) string {
	if q.opts.Key != nil {
		return q.name + "(" + q.opts.Key(arg) + ")"
	}
	return fmt.Sprintf("%s(%v)", q.name, arg)
}

func (q *Query[A, R]) tags(arg A) []Tag {
	if q.opts.Provides == nil {
		return nil
	}
	return q.opts.Provides(arg)
}

func (q *Query[A, R]) maxAge() time.Duration {
	switch {
	case q.opts.RevalidateAfter < 0:
		return 0
	case q.opts.RevalidateAfter > 0:
		return q.opts.RevalidateAfter
	}
	return q.c.revalidateAfter
}

// Get returns the cached result for arg, fetching it when missing, stale or
// older than the revalidation window.
func (q *Query[A, R]) Get(ctx context.Context, arg A) (R, error) {
	key := q.key(arg)
	if v, state := q.c.lookup(key); state == StateFresh {
		q.c.log.WithField("key", key).Debug("cache hit")
		return v.(R), nil
	}
	return q.run(ctx, arg, key)
}

// Refetch bypasses the cache and replaces the entry for arg on success.
func (q *Query[A, R]) Refetch(ctx context.Context, arg A) (R, error) {
	return q.run(ctx, arg, q.key(arg))
}

// peek reads the cached result for arg without touching the store. Stale
// results are returned too.
func (q *Query[A, R]) peek(arg A) (R, bool) {
	v, state := q.c.lookup(q.key(arg))
	if state == StateMissing {
		var zero R
		return zero, false
	}
	return v.(R), true
}

func (q *Query[A, R]) state(arg A) State {
	_, state := q.c.lookup(q.key(arg))
	return state
}

func (q *Query[A, R]) run(ctx context.Context, arg A, key string) (R, error) {
	v, err := q.c.fetch(ctx, key, q.tags(arg), q.maxAge(), func(ctx context.Context) (any, error) {
		return q.opts.Fetch(ctx, arg)
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return v.(R), nil
}

// Subscription keeps a query result current for one consumer until
// Unsubscribe is called or the subscribing context ends.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops deliveries. Results still in flight are discarded.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// Subscribe delivers the result for arg to fn now and again after every
// invalidation of its tags. fn runs on a background goroutine.
func (q *Query[A, R]) Subscribe(ctx context.Context, arg A, fn func(R, error)) *Subscription {
	key := q.key(arg)

	deliver := func(v any, err error) {
		if err != nil {
			var zero R
			fn(zero, err)
			return
		}
		fn(v.(R), nil)
	}

	refetch := func() {
		v, err := q.Refetch(context.Background(), arg)
		q.c.notify(key, v, err)
	}

	id, sub := q.c.subscribe(key, q.tags(arg), refetch, deliver)

	stop := context.AfterFunc(ctx, func() { q.c.unsubscribe(key, id) })
	s := &Subscription{cancel: func() {
		stop()
		q.c.unsubscribe(key, id)
	}}

	q.c.background.Add(1)
	go func() {
		defer q.c.background.Done()
		v, err := q.Get(ctx, arg)
		q.c.deliver(sub, v, err)
	}()

	return s
}
