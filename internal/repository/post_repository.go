package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"blogCPT/internal/cache"
	"blogCPT/internal/docstore"
	"blogCPT/internal/models"
	"blogCPT/internal/normalize"
)

type pageArgs struct {
	Size   int
	Cursor string
}

type updateArgs struct {
	PostID string
	Fields models.UpdatePostRequest
}

type PostRepositoryImpl struct {
	store docstore.Store

	listPosts  *cache.Query[pageArgs, models.PostsPage]
	getPost    *cache.Query[string, *models.Post]
	addPost    *cache.Mutation[models.CreatePostRequest, *models.Post]
	updatePost *cache.Mutation[updateArgs, string]
	deletePost *cache.Mutation[string, string]
}

func NewPostRepository(store docstore.Store, c *cache.Cache) *PostRepositoryImpl {
	r := &PostRepositoryImpl{store: store}

	r.listPosts = cache.DefineQuery(c, "getPosts", cache.QueryOptions[pageArgs, models.PostsPage]{
		Fetch: r.fetchPage,
		Key: func(a pageArgs) string {
			return strconv.Itoa(a.Size) + "|" + a.Cursor
		},
		Provides: func(pageArgs) []cache.Tag {
			return []cache.Tag{cache.ListTag(TagPosts)}
		},
	})

	r.getPost = cache.DefineQuery(c, "getPostById", cache.QueryOptions[string, *models.Post]{
		Fetch: r.fetchPost,
		Provides: func(id string) []cache.Tag {
			return []cache.Tag{cache.IDTag(TagPosts, id)}
		},
	})

	r.addPost = cache.DefineMutation(c, "addPost", cache.MutationOptions[models.CreatePostRequest, *models.Post]{
		Run: r.insert,
		Invalidates: func(models.CreatePostRequest, *models.Post) []cache.Tag {
			return []cache.Tag{cache.ListTag(TagPosts)}
		},
	})

	r.updatePost = cache.DefineMutation(c, "updatePost", cache.MutationOptions[updateArgs, string]{
		Run: r.update,
		Invalidates: func(a updateArgs, _ string) []cache.Tag {
			return []cache.Tag{cache.ListTag(TagPosts), cache.IDTag(TagPosts, a.PostID)}
		},
	})

	// The detail tag is dropped too so a deleted post is never served from cache.
	r.deletePost = cache.DefineMutation(c, "deletePost", cache.MutationOptions[string, string]{
		Run: r.remove,
		Invalidates: func(id, _ string) []cache.Tag {
			return []cache.Tag{cache.ListTag(TagPosts), cache.IDTag(TagPosts, id)}
		},
	})

	return r
}

// ListPosts returns one page of posts, newest first. HasMore is true whenever
// the page came back full, so an exactly full last page reports more.
func (r *PostRepositoryImpl) ListPosts(ctx context.Context, pageSize int, cursor string) (models.PostsPage, error) {
	args, err := r.pageArgs(pageSize, cursor)
	if err != nil {
		return models.PostsPage{}, err
	}
	return r.listPosts.Get(ctx, args)
}

func (r *PostRepositoryImpl) RefreshPosts(ctx context.Context, pageSize int, cursor string) (models.PostsPage, error) {
	args, err := r.pageArgs(pageSize, cursor)
	if err != nil {
		return models.PostsPage{}, err
	}
	return r.listPosts.Refetch(ctx, args)
}

func (r *PostRepositoryImpl) pageArgs(pageSize int, cursor string) (pageArgs, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if cursor != "" {
		if _, err := DecodeCursor(cursor); err != nil {
			return pageArgs{}, err
		}
	}
	return pageArgs{Size: pageSize, Cursor: cursor}, nil
}

func (r *PostRepositoryImpl) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	return r.getPost.Get(ctx, postID)
}

func (r *PostRepositoryImpl) AddPost(ctx context.Context, req models.CreatePostRequest) (*models.Post, error) {
	return r.addPost.Do(ctx, req)
}

func (r *PostRepositoryImpl) UpdatePost(ctx context.Context, postID string, req models.UpdatePostRequest) error {
	_, err := r.updatePost.Do(ctx, updateArgs{PostID: postID, Fields: req})
	return err
}

func (r *PostRepositoryImpl) DeletePost(ctx context.Context, postID string) error {
	_, err := r.deletePost.Do(ctx, postID)
	return err
}

func (r *PostRepositoryImpl) fetchPage(ctx context.Context, a pageArgs) (models.PostsPage, error) {
	q := docstore.Query{
		Collection: models.CollectionPosts,
		OrderBy:    "createdAt",
		Direction:  docstore.Descending,
		Limit:      a.Size,
	}
	if a.Cursor != "" {
		cur, err := DecodeCursor(a.Cursor)
		if err != nil {
			return models.PostsPage{}, err
		}
		q.StartAfter = &cur
	}

	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return models.PostsPage{}, err
	}

	page := models.PostsPage{
		Posts:   normalize.Posts(docs),
		HasMore: len(docs) == a.Size,
	}
	if page.HasMore {
		page.NextCursor = EncodeCursor(page.Posts[len(page.Posts)-1])
	}
	return page, nil
}

func (r *PostRepositoryImpl) fetchPost(ctx context.Context, id string) (*models.Post, error) {
	doc, err := r.store.Get(ctx, models.CollectionPosts, id)
	if err != nil {
		return nil, notFound(err, "пост", id)
	}
	post := normalize.Post(doc)
	return &post, nil
}

func (r *PostRepositoryImpl) insert(ctx context.Context, req models.CreatePostRequest) (*models.Post, error) {
	fields := map[string]any{
		"title":     req.Title,
		"content":   req.Content,
		"author":    req.Author,
		"authorId":  req.AuthorID,
		"category":  string(req.Category),
		"createdAt": docstore.ServerTimestamp,
		"updatedAt": docstore.ServerTimestamp,
	}
	if req.ImageURL != "" {
		fields["imageUrl"] = req.ImageURL
	}

	doc, err := r.store.Add(ctx, models.CollectionPosts, fields)
	if err != nil {
		return nil, err
	}

	post := normalize.Post(doc)
	return &post, nil
}

func (r *PostRepositoryImpl) update(ctx context.Context, a updateArgs) (string, error) {
	fields := map[string]any{"updatedAt": docstore.ServerTimestamp}
	if a.Fields.Title != nil {
		fields["title"] = *a.Fields.Title
	}
	if a.Fields.Content != nil {
		fields["content"] = *a.Fields.Content
	}
	if a.Fields.Category != nil {
		fields["category"] = string(*a.Fields.Category)
	}
	if a.Fields.ImageURL != nil {
		fields["imageUrl"] = *a.Fields.ImageURL
	}

	if err := r.store.Update(ctx, models.CollectionPosts, a.PostID, fields); err != nil {
		return "", notFound(err, "пост", a.PostID)
	}
	return a.PostID, nil
}

func (r *PostRepositoryImpl) remove(ctx context.Context, id string) (string, error) {
	if err := r.store.Delete(ctx, models.CollectionPosts, id); err != nil {
		return "", err
	}
	return id, nil
}

// notFound translates a missing document into cache.ErrNotFound and leaves
// every other error alone.
func notFound(err error, what, id string) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s с ID %s не найден: %w", what, id, cache.ErrNotFound)
	}
	return err
}
