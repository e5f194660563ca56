package repository

import (
	"context"

	"blogCPT/internal/cache"
	"blogCPT/internal/docstore"
	"blogCPT/internal/models"
	"blogCPT/internal/normalize"
)

type CommentRepositoryImpl struct {
	store docstore.Store

	listComments *cache.Query[string, []models.Comment]
	addComment   *cache.Mutation[models.CreateCommentRequest, *models.Comment]
}

func NewCommentRepository(store docstore.Store, c *cache.Cache) *CommentRepositoryImpl {
	r := &CommentRepositoryImpl{store: store}

	r.listComments = cache.DefineQuery(c, "getComments", cache.QueryOptions[string, []models.Comment]{
		Fetch: r.fetchComments,
		Provides: func(postID string) []cache.Tag {
			return []cache.Tag{cache.IDTag(TagComments, postID)}
		},
	})

	r.addComment = cache.DefineMutation(c, "addComment", cache.MutationOptions[models.CreateCommentRequest, *models.Comment]{
		Run: r.insert,
		Invalidates: func(req models.CreateCommentRequest, _ *models.Comment) []cache.Tag {
			return []cache.Tag{cache.IDTag(TagComments, req.PostID)}
		},
	})

	return r
}

// ListComments returns the comments of a post, newest first.
func (r *CommentRepositoryImpl) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	return r.listComments.Get(ctx, postID)
}

func (r *CommentRepositoryImpl) AddComment(ctx context.Context, req models.CreateCommentRequest) (*models.Comment, error) {
	return r.addComment.Do(ctx, req)
}

func (r *CommentRepositoryImpl) fetchComments(ctx context.Context, postID string) ([]models.Comment, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: models.CollectionComments,
		Where:      []docstore.Filter{{Field: "postId", Value: postID}},
		OrderBy:    "createdAt",
		Direction:  docstore.Descending,
	})
	if err != nil {
		return nil, err
	}
	return normalize.Comments(docs), nil
}

func (r *CommentRepositoryImpl) insert(ctx context.Context, req models.CreateCommentRequest) (*models.Comment, error) {
	author := req.Author
	if author == "" {
		author = models.AnonymousAuthor
	}

	doc, err := r.store.Add(ctx, models.CollectionComments, map[string]any{
		"postId":    req.PostID,
		"author":    author,
		"authorId":  req.AuthorID,
		"content":   req.Content,
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return nil, err
	}

	comment := normalize.Comment(doc)
	return &comment, nil
}
