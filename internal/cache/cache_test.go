package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogCPT/internal/clock"
)

type counter struct {
	calls atomic.Int32

	mu    sync.Mutex
	value string
	err   error
}

func newCounter(initial string) *counter {
	return &counter{value: initial}
}

func (c *counter) fetch(ctx context.Context, arg string) (string, error) {
	c.calls.Add(1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return "", c.err
	}
	return c.value + ":" + arg, nil
}

func (c *counter) set(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
}

func (c *counter) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func newTestCache(c clock.Clock) *Cache {
	return New(Options{Clock: c, RevalidateAfter: time.Minute})
}

func listQuery(c *Cache, src *counter) *Query[string, string] {
	return DefineQuery(c, "list", QueryOptions[string, string]{
		Fetch:    src.fetch,
		Provides: func(string) []Tag { return []Tag{ListTag("Posts")} },
	})
}

func TestQuery_GetCachesResult(t *testing.T) {
	c := newTestCache(nil)
	src := newCounter("v1")
	q := listQuery(c, src)

	v, err := q.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "v1:a", v)

	src.set("v2")
	v, err = q.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "v1:a", v)
	assert.Equal(t, int32(1), src.calls.Load())

	v, err = q.Get(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "v2:b", v)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestMutation_InvalidatesMatchingTags(t *testing.T) {
	c := newTestCache(nil)
	src := newCounter("v1")
	list := listQuery(c, src)
	detail := DefineQuery(c, "detail", QueryOptions[string, string]{
		Fetch:    src.fetch,
		Provides: func(id string) []Tag { return []Tag{IDTag("Posts", id)} },
	})
	comments := DefineQuery(c, "comments", QueryOptions[string, string]{
		Fetch:    src.fetch,
		Provides: func(id string) []Tag { return []Tag{IDTag("Comments", id)} },
	})
	touch := DefineMutation(c, "touch", MutationOptions[string, string]{
		Run: func(ctx context.Context, id string) (string, error) { return id, nil },
		Invalidates: func(id, _ string) []Tag {
			return []Tag{ListTag("Posts"), IDTag("Posts", id)}
		},
	})

	ctx := context.Background()
	for _, id := range []string{"p1", "p2"} {
		_, err := detail.Get(ctx, id)
		require.NoError(t, err)
	}
	_, err := list.Get(ctx, "page")
	require.NoError(t, err)
	_, err = comments.Get(ctx, "p1")
	require.NoError(t, err)

	_, err = touch.Do(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, StateStale, list.state("page"))
	assert.Equal(t, StateStale, detail.state("p1"))
	assert.Equal(t, StateFresh, detail.state("p2"))
	assert.Equal(t, StateFresh, comments.state("p1"))

	src.set("v2")
	v, err := list.Get(ctx, "page")
	require.NoError(t, err)
	assert.Equal(t, "v2:page", v)
	assert.Equal(t, StateFresh, list.state("page"))
}

func TestMutation_FailureLeavesCacheAlone(t *testing.T) {
	c := newTestCache(nil)
	src := newCounter("v1")
	list := listQuery(c, src)
	broken := DefineMutation(c, "broken", MutationOptions[string, string]{
		Run: func(ctx context.Context, arg string) (string, error) {
			return "", errors.New("permission denied")
		},
		Invalidates: func(string, string) []Tag { return []Tag{ListTag("Posts")} },
	})

	_, err := list.Get(context.Background(), "page")
	require.NoError(t, err)

	_, err = broken.Do(context.Background(), "x")
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, StatusCustomError, ce.Status)
	assert.Equal(t, "permission denied", ce.Message)

	assert.Equal(t, StateFresh, list.state("page"))
}

func TestQuery_StoreFailureCreatesNoEntry(t *testing.T) {
	c := newTestCache(nil)
	src := newCounter("v1")
	list := listQuery(c, src)
	src.fail(errors.New("network unreachable"))

	_, err := list.Get(context.Background(), "page")
	var ce *Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, &Error{Status: "CUSTOM_ERROR", Message: "network unreachable"}, ce)

	_, ok := list.peek("page")
	assert.False(t, ok)
	assert.Equal(t, StateMissing, list.state("page"))
}

func TestQuery_FailedRefetchKeepsPreviousEntry(t *testing.T) {
	c := newTestCache(nil)
	src := newCounter("v1")
	list := listQuery(c, src)

	_, err := list.Get(context.Background(), "page")
	require.NoError(t, err)

	src.fail(errors.New("boom"))
	_, err = list.Refetch(context.Background(), "page")
	require.Error(t, err)

	v, ok := list.peek("page")
	require.True(t, ok)
	assert.Equal(t, "v1:page", v)
}

func TestQuery_NotFoundPassesThrough(t *testing.T) {
	c := newTestCache(nil)
	q := DefineQuery(c, "post", QueryOptions[string, *string]{
		Fetch: func(ctx context.Context, id string) (*string, error) {
			return nil, fmt.Errorf("post %s: %w", id, ErrNotFound)
		},
	})

	_, err := q.Get(context.Background(), "p1")
	assert.True(t, IsNotFound(err))
	var ce *Error
	assert.False(t, errors.As(err, &ce))
	assert.Equal(t, StateMissing, q.state("p1"))
}

func TestQuery_RevalidateWindow(t *testing.T) {
	mc := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	c := newTestCache(mc)
	src := newCounter("v1")
	list := listQuery(c, src)
	pinned := DefineQuery(c, "pinned", QueryOptions[string, string]{
		Fetch:           src.fetch,
		RevalidateAfter: -1,
	})

	ctx := context.Background()
	_, err := list.Get(ctx, "page")
	require.NoError(t, err)
	_, err = pinned.Get(ctx, "x")
	require.NoError(t, err)

	mc.Advance(59 * time.Second)
	assert.Equal(t, StateFresh, list.state("page"))

	mc.Advance(time.Second)
	assert.Equal(t, StateStale, list.state("page"))
	assert.Equal(t, StateFresh, pinned.state("x"))

	src.set("v2")
	v, err := list.Get(ctx, "page")
	require.NoError(t, err)
	assert.Equal(t, "v2:page", v)
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestQuery_CustomKey(t *testing.T) {
	type page struct {
		size   int
		cursor string
	}
	c := newTestCache(nil)
	calls := 0
	q := DefineQuery(c, "posts", QueryOptions[page, int]{
		Fetch: func(ctx context.Context, p page) (int, error) {
			calls++
			return p.size, nil
		},
		Key: func(p page) string { return fmt.Sprintf("%d|%s", p.size, p.cursor) },
	})

	_, _ = q.Get(context.Background(), page{size: 6})
	_, _ = q.Get(context.Background(), page{size: 6})
	_, _ = q.Get(context.Background(), page{size: 6, cursor: "abc"})
	assert.Equal(t, 2, calls)
}

func TestQuery_InvalidatedWhileInFlightIsStoredStale(t *testing.T) {
	c := newTestCache(nil)
	release := make(chan struct{})
	started := make(chan struct{})
	q := DefineQuery(c, "slow", QueryOptions[string, string]{
		Fetch: func(ctx context.Context, arg string) (string, error) {
			close(started)
			<-release
			return "old", nil
		},
		Provides: func(string) []Tag { return []Tag{ListTag("Posts")} },
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = q.Get(context.Background(), "page")
	}()

	<-started
	c.Invalidate(ListTag("Posts"))
	close(release)
	<-done

	v, ok := q.peek("page")
	require.True(t, ok)
	assert.Equal(t, "old", v)
	assert.Equal(t, StateStale, q.state("page"))
}

func TestSubscribe_RefetchesAfterInvalidation(t *testing.T) {
	c := newTestCache(nil)
	src := newCounter("v1")
	list := listQuery(c, src)
	add := DefineMutation(c, "add", MutationOptions[string, string]{
		Run:         func(ctx context.Context, arg string) (string, error) { return arg, nil },
		Invalidates: func(string, string) []Tag { return []Tag{ListTag("Posts")} },
	})

	var (
		mu   sync.Mutex
		seen []string
	)
	sub := list.Subscribe(context.Background(), "page", func(v string, err error) {
		assert.NoError(t, err)
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	c.Wait()

	src.set("v2")
	_, err := add.Do(context.Background(), "new")
	require.NoError(t, err)
	c.Wait()

	mu.Lock()
	assert.Equal(t, []string{"v1:page", "v2:page"}, seen)
	mu.Unlock()
	assert.Equal(t, StateFresh, list.state("page"))
}

func TestSubscribe_UnsubscribedResultIsDiscarded(t *testing.T) {
	c := newTestCache(nil)
	release := make(chan struct{})
	q := DefineQuery(c, "slow", QueryOptions[string, string]{
		Fetch: func(ctx context.Context, arg string) (string, error) {
			<-release
			return "late", nil
		},
	})

	var delivered atomic.Int32
	sub := q.Subscribe(context.Background(), "x", func(string, error) { delivered.Add(1) })
	sub.Unsubscribe()
	close(release)
	c.Wait()

	assert.Equal(t, int32(0), delivered.Load())

	v, ok := q.peek("x")
	require.True(t, ok)
	assert.Equal(t, "late", v)
}

func TestSubscribe_ContextEndUnsubscribes(t *testing.T) {
	c := newTestCache(nil)
	src := newCounter("v1")
	list := listQuery(c, src)

	ctx, cancel := context.WithCancel(context.Background())
	var delivered atomic.Int32
	list.Subscribe(ctx, "page", func(string, error) { delivered.Add(1) })
	c.Wait()
	require.Equal(t, int32(1), delivered.Load())

	cancel()
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return len(c.watchers) == 0
	}, time.Second, 5*time.Millisecond)

	c.Invalidate(ListTag("Posts"))
	c.Wait()
	assert.Equal(t, int32(1), delivered.Load())
}

func TestDefine_DuplicateNamePanics(t *testing.T) {
	c := newTestCache(nil)
	src := newCounter("v1")
	listQuery(c, src)

	assert.Panics(t, func() { listQuery(c, src) })
	assert.Panics(t, func() {
		DefineMutation(c, "list", MutationOptions[string, string]{
			Run: func(ctx context.Context, s string) (string, error) { return s, nil },
		})
	})
	assert.Panics(t, func() { DefineQuery(c, "nofetch", QueryOptions[string, string]{}) })
}

func TestEndpoints(t *testing.T) {
	c := newTestCache(nil)
	src := newCounter("v1")
	listQuery(c, src)
	DefineMutation(c, "addPost", MutationOptions[string, string]{
		Run: func(ctx context.Context, s string) (string, error) { return s, nil },
	})

	assert.Equal(t, []EndpointInfo{
		{Name: "addPost", Kind: KindMutation},
		{Name: "list", Kind: KindQuery},
	}, c.Endpoints())
}

func TestTagHelpers(t *testing.T) {
	assert.Equal(t, Tag{Type: "Posts", ID: "LIST"}, ListTag("Posts"))
	assert.Equal(t, "Posts/p1", IDTag("Posts", "p1").String())
	assert.True(t, intersects([]Tag{ListTag("Posts")}, []Tag{IDTag("Posts", "x"), ListTag("Posts")}))
	assert.False(t, intersects([]Tag{ListTag("Posts")}, []Tag{ListTag("Comments")}))
	assert.False(t, intersects([]Tag{IDTag("Posts", "p1")}, []Tag{ListTag("Posts")}))
}

func TestEviction_UnusedResultsAgeOut(t *testing.T) {
	mc := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	c := newTestCache(mc)
	src := newCounter("v1")
	list := listQuery(c, src)
	ctx := context.Background()

	_, err := list.Get(ctx, "old")
	require.NoError(t, err)

	sub := list.Subscribe(ctx, "watched", func(string, error) {})
	defer sub.Unsubscribe()
	c.Wait()

	mc.Advance(61 * time.Second)
	_, err = list.Get(ctx, "new")
	require.NoError(t, err)

	assert.Equal(t, StateMissing, list.state("old"))
	assert.NotEqual(t, StateMissing, list.state("watched"))
	assert.Equal(t, 2, c.Len())
}

func TestEviction_MaxEntriesDropsLeastRecentlyRead(t *testing.T) {
	mc := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	c := New(Options{Clock: mc, MaxEntries: 3, KeepUnusedFor: -1})
	src := newCounter("v1")
	list := listQuery(c, src)
	ctx := context.Background()

	for _, arg := range []string{"k0", "k1", "k2"} {
		mc.Advance(time.Second)
		_, err := list.Get(ctx, arg)
		require.NoError(t, err)
	}

	mc.Advance(time.Second)
	_, ok := list.peek("k0")
	require.True(t, ok)

	mc.Advance(time.Second)
	_, err := list.Get(ctx, "k3")
	require.NoError(t, err)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, StateMissing, list.state("k1"))
	assert.NotEqual(t, StateMissing, list.state("k0"))
}

func TestEviction_ManyDistinctKeysStayBounded(t *testing.T) {
	c := New(Options{MaxEntries: 10})
	q := DefineQuery(c, "post", QueryOptions[string, string]{
		Fetch:    newCounter("v").fetch,
		Provides: func(id string) []Tag { return []Tag{IDTag("Posts", id)} },
	})
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("p%d", i)
		_, err := q.Get(ctx, id)
		require.NoError(t, err)
		c.Invalidate(IDTag("Posts", id))
	}
	_, err := q.Get(ctx, "last")
	require.NoError(t, err)

	assert.LessOrEqual(t, c.Len(), 10)
	c.mu.Lock()
	assert.LessOrEqual(t, len(c.tagVersions), 10)
	c.mu.Unlock()
}

func TestEviction_InvalidationAfterPruneStillMarksInFlightStale(t *testing.T) {
	mc := clock.NewManual(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
	c := New(Options{Clock: mc, MaxEntries: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	slow := DefineQuery(c, "slow", QueryOptions[string, string]{
		Fetch: func(ctx context.Context, arg string) (string, error) {
			close(started)
			<-release
			return "old", nil
		},
		Provides: func(string) []Tag { return []Tag{IDTag("Posts", "p1")} },
	})
	other := DefineQuery(c, "other", QueryOptions[string, string]{
		Fetch:    newCounter("v").fetch,
		Provides: func(arg string) []Tag { return []Tag{IDTag("Posts", arg)} },
	})
	ctx := context.Background()

	c.Invalidate(IDTag("Posts", "p1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = slow.Get(ctx, "x")
	}()
	<-started

	// Drops the version of Posts/p1, which nothing cached refers to yet.
	_, err := other.Get(ctx, "p2")
	require.NoError(t, err)

	c.Invalidate(IDTag("Posts", "p1"))
	mc.Advance(time.Second)
	close(release)
	<-done

	assert.Equal(t, StateStale, slow.state("x"))
}

func TestQuery_SharedFetchSurvivesFirstCallerCancel(t *testing.T) {
	c := newTestCache(nil)
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	q := DefineQuery(c, "slow", QueryOptions[string, string]{
		Fetch: func(ctx context.Context, arg string) (string, error) {
			started <- struct{}{}
			<-release
			if err := ctx.Err(); err != nil {
				return "", err
			}
			return "fresh", nil
		},
	})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := q.Get(leaderCtx, "page")
		leaderErr <- err
	}()
	<-started

	type result struct {
		v   string
		err error
	}
	follower := make(chan result, 1)
	go func() {
		v, err := q.Get(context.Background(), "page")
		follower <- result{v, err}
	}()

	cancel()
	assert.Error(t, <-leaderErr)

	close(release)
	res := <-follower
	require.NoError(t, res.err)
	assert.Equal(t, "fresh", res.v)
	assert.Equal(t, StateFresh, q.state("page"))
}
