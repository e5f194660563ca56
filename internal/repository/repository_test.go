package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blogCPT/internal/cache"
	"blogCPT/internal/clock"
	"blogCPT/internal/docstore"
	"blogCPT/internal/logger"
	"blogCPT/internal/models"
)

var epoch = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

// flakyStore wraps a store and fails calls while down is set, counting queries.
type flakyStore struct {
	docstore.Store

	mu      sync.Mutex
	down    bool
	queries int
}

func (s *flakyStore) setDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *flakyStore) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.down {
		return errors.New("backend unavailable")
	}
	return nil
}

func (s *flakyStore) queryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries
}

func (s *flakyStore) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.Lock()
	s.queries++
	s.mu.Unlock()
	if err := s.err(); err != nil {
		return nil, err
	}
	return s.Store.Query(ctx, q)
}

func (s *flakyStore) Add(ctx context.Context, collection string, fields map[string]any) (docstore.Document, error) {
	if err := s.err(); err != nil {
		return docstore.Document{}, err
	}
	return s.Store.Add(ctx, collection, fields)
}

func (s *flakyStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := s.err(); err != nil {
		return err
	}
	return s.Store.Update(ctx, collection, id, fields)
}

func (s *flakyStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.err(); err != nil {
		return err
	}
	return s.Store.Delete(ctx, collection, id)
}

type fixture struct {
	clock *clock.Manual
	store *flakyStore
	cache *cache.Cache
	repo  *Repository
}

func setup(t *testing.T) *fixture {
	t.Helper()
	c := clock.NewManual(epoch)
	store := &flakyStore{Store: docstore.NewMemoryStore(c)}
	ch := cache.New(cache.Options{Clock: c, Logger: logger.Discard(), RevalidateAfter: time.Minute})
	return &fixture{clock: c, store: store, cache: ch, repo: NewRepository(store, ch)}
}

func (f *fixture) addPosts(t *testing.T, n int) []*models.Post {
	t.Helper()
	var posts []*models.Post
	for i := 0; i < n; i++ {
		f.clock.Advance(time.Second)
		p, err := f.repo.Post.AddPost(context.Background(), models.CreatePostRequest{
			Title:    fmt.Sprintf("Post %d", i),
			Content:  "body",
			Author:   "Ann",
			AuthorID: "u1",
			Category: models.CategoryNature,
		})
		require.NoError(t, err)
		posts = append(posts, p)
	}
	return posts
}

func TestListPosts_NewestFirstWithHasMore(t *testing.T) {
	f := setup(t)
	posts := f.addPosts(t, 7)
	ctx := context.Background()

	page, err := f.repo.Post.ListPosts(ctx, DefaultPageSize, "")
	require.NoError(t, err)

	require.Len(t, page.Posts, 6)
	assert.True(t, page.HasMore)
	assert.NotEmpty(t, page.NextCursor)
	assert.Equal(t, posts[6].ID, page.Posts[0].ID)
	for i := 1; i < len(page.Posts); i++ {
		assert.Greater(t, page.Posts[i-1].CreatedAt, page.Posts[i].CreatedAt)
	}

	next, err := f.repo.Post.ListPosts(ctx, DefaultPageSize, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, next.Posts, 1)
	assert.Equal(t, posts[0].ID, next.Posts[0].ID)
	assert.False(t, next.HasMore)
	assert.Empty(t, next.NextCursor)
}

func TestListPosts_FullLastPageReportsMore(t *testing.T) {
	f := setup(t)
	f.addPosts(t, 6)

	page, err := f.repo.Post.ListPosts(context.Background(), 6, "")
	require.NoError(t, err)
	assert.Len(t, page.Posts, 6)
	assert.True(t, page.HasMore)

	rest, err := f.repo.Post.ListPosts(context.Background(), 6, page.NextCursor)
	require.NoError(t, err)
	assert.Empty(t, rest.Posts)
	assert.False(t, rest.HasMore)
}

func TestListPosts_EmptyCollection(t *testing.T) {
	f := setup(t)

	page, err := f.repo.Post.ListPosts(context.Background(), 0, "")
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.False(t, page.HasMore)
}

func TestListPosts_InvalidCursor(t *testing.T) {
	f := setup(t)

	_, err := f.repo.Post.ListPosts(context.Background(), 6, "%%%")
	assert.ErrorIs(t, err, ErrInvalidCursor)
	assert.Zero(t, f.store.queryCount())
}

func TestListPosts_PagesPastPostsWithoutCreatedAt(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.addPosts(t, 2)

	for _, title := range []string{"legacy a", "legacy b"} {
		_, err := f.store.Store.Add(ctx, models.CollectionPosts, map[string]any{
			"title":    title,
			"content":  "imported",
			"authorId": "u1",
			"category": string(models.CategoryFood),
		})
		require.NoError(t, err)
	}

	page, err := f.repo.Post.ListPosts(ctx, 3, "")
	require.NoError(t, err)
	require.Len(t, page.Posts, 3)
	require.True(t, page.HasMore)
	last := page.Posts[2]
	assert.Empty(t, last.CreatedAt)

	next, err := f.repo.Post.ListPosts(ctx, 3, page.NextCursor)
	require.NoError(t, err)
	require.Len(t, next.Posts, 1)
	assert.Empty(t, next.Posts[0].CreatedAt)
	assert.NotEqual(t, last.ID, next.Posts[0].ID)
	assert.False(t, next.HasMore)
}

func TestListPosts_ServedFromCache(t *testing.T) {
	f := setup(t)
	f.addPosts(t, 2)
	ctx := context.Background()

	_, err := f.repo.Post.ListPosts(ctx, 6, "")
	require.NoError(t, err)
	_, err = f.repo.Post.ListPosts(ctx, 6, "")
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.queryCount())

	_, err = f.repo.Post.RefreshPosts(ctx, 6, "")
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.queryCount())

	f.clock.Advance(time.Minute)
	_, err = f.repo.Post.ListPosts(ctx, 6, "")
	require.NoError(t, err)
	assert.Equal(t, 3, f.store.queryCount())
}

func TestAddPost_TimestampsAndListInvalidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	before, err := f.repo.Post.ListPosts(ctx, 6, "")
	require.NoError(t, err)
	assert.Empty(t, before.Posts)

	posts := f.addPosts(t, 1)
	p := posts[0]
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
	assert.Equal(t, "2024-05-01T10:00:01.000Z", p.CreatedAt)

	after, err := f.repo.Post.ListPosts(ctx, 6, "")
	require.NoError(t, err)
	require.Len(t, after.Posts, 1)
	assert.Equal(t, p.ID, after.Posts[0].ID)
}

func TestUpdatePost_AdvancesUpdatedAt(t *testing.T) {
	f := setup(t)
	p := f.addPosts(t, 1)[0]
	ctx := context.Background()

	cached, err := f.repo.Post.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Post 0", cached.Title)

	f.clock.Advance(time.Second)
	title := "Renamed"
	require.NoError(t, f.repo.Post.UpdatePost(ctx, p.ID, models.UpdatePostRequest{Title: &title}))

	got, err := f.repo.Post.GetPost(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, p.Content, got.Content)
	assert.Equal(t, p.CreatedAt, got.CreatedAt)
	assert.Greater(t, got.UpdatedAt, p.UpdatedAt)

	page, err := f.repo.Post.ListPosts(ctx, 6, "")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", page.Posts[0].Title)
}

func TestUpdatePost_Missing(t *testing.T) {
	f := setup(t)
	title := "x"

	err := f.repo.Post.UpdatePost(context.Background(), "missing", models.UpdatePostRequest{Title: &title})
	assert.True(t, cache.IsNotFound(err))
}

func TestDeletePost_ThenNotFound(t *testing.T) {
	f := setup(t)
	posts := f.addPosts(t, 2)
	ctx := context.Background()

	_, err := f.repo.Post.GetPost(ctx, posts[0].ID)
	require.NoError(t, err)
	_, err = f.repo.Post.ListPosts(ctx, 6, "")
	require.NoError(t, err)

	require.NoError(t, f.repo.Post.DeletePost(ctx, posts[0].ID))

	_, err = f.repo.Post.GetPost(ctx, posts[0].ID)
	assert.True(t, cache.IsNotFound(err))

	page, err := f.repo.Post.ListPosts(ctx, 6, "")
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, posts[1].ID, page.Posts[0].ID)

	assert.NoError(t, f.repo.Post.DeletePost(ctx, posts[0].ID))
}

func TestStoreFailure_CustomErrorAndNoEntry(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.store.setDown(true)

	_, err := f.repo.Post.ListPosts(ctx, 6, "")
	var ce *cache.Error
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, cache.StatusCustomError, ce.Status)
	assert.Equal(t, "backend unavailable", ce.Message)

	_, err = f.repo.Post.AddPost(ctx, models.CreatePostRequest{Title: "t", Content: "c", AuthorID: "u", Category: models.CategoryFood})
	require.ErrorAs(t, err, &ce)

	f.store.setDown(false)
	page, err := f.repo.Post.ListPosts(ctx, 6, "")
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Equal(t, 2, f.store.queryCount())
}

func TestComments_NewestFirstPerPost(t *testing.T) {
	f := setup(t)
	posts := f.addPosts(t, 2)
	ctx := context.Background()

	for i, text := range []string{"first", "second"} {
		f.clock.Advance(time.Second)
		_, err := f.repo.Comment.AddComment(ctx, models.CreateCommentRequest{
			PostID:  posts[0].ID,
			Author:  fmt.Sprintf("reader %d", i),
			Content: text,
		})
		require.NoError(t, err)
	}

	other, err := f.repo.Comment.ListComments(ctx, posts[1].ID)
	require.NoError(t, err)
	assert.Empty(t, other)

	comments, err := f.repo.Comment.ListComments(ctx, posts[0].ID)
	require.NoError(t, err)
	require.Len(t, comments, 2)
	assert.Equal(t, "second", comments[0].Content)
	assert.Equal(t, "first", comments[1].Content)
	for _, c := range comments {
		assert.Equal(t, posts[0].ID, c.PostID)
	}
}

func TestAddComment_InvalidatesOnlyItsPost(t *testing.T) {
	f := setup(t)
	posts := f.addPosts(t, 2)
	ctx := context.Background()

	_, err := f.repo.Comment.ListComments(ctx, posts[0].ID)
	require.NoError(t, err)
	_, err = f.repo.Comment.ListComments(ctx, posts[1].ID)
	require.NoError(t, err)
	queries := f.store.queryCount()

	c, err := f.repo.Comment.AddComment(ctx, models.CreateCommentRequest{PostID: posts[0].ID, Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, models.AnonymousAuthor, c.Author)
	assert.NotEmpty(t, c.CreatedAt)

	_, err = f.repo.Comment.ListComments(ctx, posts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, queries, f.store.queryCount())

	list, err := f.repo.Comment.ListComments(ctx, posts[0].ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, queries+1, f.store.queryCount())
}

func TestCursorRoundTrip(t *testing.T) {
	post := models.Post{ID: "abc", CreatedAt: "2024-05-01T10:00:01.000Z"}

	cur, err := DecodeCursor(EncodeCursor(post))
	require.NoError(t, err)
	assert.Equal(t, "abc", cur.ID)
	assert.Equal(t, epoch.Add(time.Second), cur.Value)

	_, err = DecodeCursor("bm8tc2VwYXJhdG9y")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	cur, err = DecodeCursor(EncodeCursor(models.Post{ID: "legacy"}))
	require.NoError(t, err)
	assert.Nil(t, cur.Value)
	assert.Equal(t, "legacy", cur.ID)
}
