package repository

import (
	"context"

	"blogCPT/internal/cache"
	"blogCPT/internal/docstore"
	"blogCPT/internal/models"
)

// Tag types used by the blog endpoints.
const (
	TagPosts    = "Posts"
	TagComments = "Comments"
)

// DefaultPageSize is the number of posts per page when the caller does not say.
const DefaultPageSize = 6

type PostRepository interface {
	ListPosts(ctx context.Context, pageSize int, cursor string) (models.PostsPage, error)
	// RefreshPosts is ListPosts with forced revalidation.
	RefreshPosts(ctx context.Context, pageSize int, cursor string) (models.PostsPage, error)
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	AddPost(ctx context.Context, req models.CreatePostRequest) (*models.Post, error)
	UpdatePost(ctx context.Context, postID string, req models.UpdatePostRequest) error
	DeletePost(ctx context.Context, postID string) error
}

type CommentRepository interface {
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	AddComment(ctx context.Context, req models.CreateCommentRequest) (*models.Comment, error)
}

type Repository struct {
	Post    PostRepository
	Comment CommentRepository
	Cache   *cache.Cache
}

func NewRepository(store docstore.Store, c *cache.Cache) *Repository {
	return &Repository{
		Post:    NewPostRepository(store, c),
		Comment: NewCommentRepository(store, c),
		Cache:   c,
	}
}
