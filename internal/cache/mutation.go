package cache

import (
	"context"
	"fmt"
)

type MutationOptions[A, R any] struct {
	Run func(ctx context.Context, arg A) (R, error)
	// Invalidates names the tags to mark stale once Run succeeds.
	Invalidates func(arg A, result R) []Tag
}

// Mutation is a typed write endpoint.
type Mutation[A, R any] struct {
	c    *Cache
	name string
	opts MutationOptions[A, R]
}

func DefineMutation[A, R any](c *Cache, name string, opts MutationOptions[A, R]) *Mutation[A, R] {
	if opts.Run == nil {
		panic(fmt.Sprintf("cache: mutation %q has no run function", name))
	}
	c.register(name, KindMutation)
	return &Mutation[A, R]{c: c, name: name, opts: opts}
}

func (m *Mutation[A, R]) Name() string { return m.name }

// Do runs the mutation once. Failures come back as *Error (or ErrNotFound)
// and leave the cache untouched.
func (m *Mutation[A, R]) Do(ctx context.Context, arg A) (R, error) {
	result, err := m.opts.Run(ctx, arg)
	if err != nil {
		m.c.log.WithField("mutation", m.name).WithError(err).Warn("mutation failed")
		var zero R
		return zero, storeError(err)
	}

	if m.opts.Invalidates != nil {
		m.c.Invalidate(m.opts.Invalidates(arg, result)...)
	}
	return result, nil
}
