package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"blogCPT/internal/models"
	"blogCPT/internal/repository"
	"blogCPT/internal/storage"
)

var ErrStorageDisabled = errors.New("хранилище изображений не настроено")

type ListPostsRequest struct {
	PageSize int
	Cursor   string
	// Category keeps only posts of that category from the fetched page.
	Category models.Category
	// Refresh forces the page to be read from the store.
	Refresh bool
}

// PostDetail is everything the detail view shows.
type PostDetail struct {
	Post     *models.Post     `json:"post"`
	Comments []models.Comment `json:"comments"`
}

type PostService interface {
	ListPosts(ctx context.Context, req ListPostsRequest) (models.PostsPage, error)
	GetPost(ctx context.Context, postID string) (*PostDetail, error)
	// FindPost reads the post alone, without its comments.
	FindPost(ctx context.Context, postID string) (*models.Post, error)
	CreatePost(ctx context.Context, author *models.AuthUser, req models.CreatePostRequest) (*models.Post, error)
	UpdatePost(ctx context.Context, postID string, req models.UpdatePostRequest) error
	DeletePost(ctx context.Context, postID string) error
	AttachImage(ctx context.Context, postID, fileName string, file io.Reader, size int64) (string, error)
}

type postService struct {
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
	storage     storage.Storage
	pageSize    int
	log         logrus.FieldLogger
}

func NewPostService(postRepo repository.PostRepository, commentRepo repository.CommentRepository, storage storage.Storage, pageSize int, log logrus.FieldLogger) PostService {
	if pageSize <= 0 {
		pageSize = repository.DefaultPageSize
	}
	return &postService{
		postRepo:    postRepo,
		commentRepo: commentRepo,
		storage:     storage,
		pageSize:    pageSize,
		log:         log,
	}
}

func (p *postService) ListPosts(ctx context.Context, req ListPostsRequest) (models.PostsPage, error) {
	size := req.PageSize
	if size <= 0 {
		size = p.pageSize
	}

	var (
		page models.PostsPage
		err  error
	)
	if req.Refresh {
		page, err = p.postRepo.RefreshPosts(ctx, size, req.Cursor)
	} else {
		page, err = p.postRepo.ListPosts(ctx, size, req.Cursor)
	}
	if err != nil {
		return models.PostsPage{}, err
	}

	if req.Category != "" {
		page.Posts = filterByCategory(page.Posts, req.Category)
	}
	return page, nil
}

func filterByCategory(posts []models.Post, category models.Category) []models.Post {
	out := make([]models.Post, 0, len(posts))
	for _, post := range posts {
		if post.Category == category {
			out = append(out, post)
		}
	}
	return out
}

func (p *postService) GetPost(ctx context.Context, postID string) (*PostDetail, error) {
	post, err := p.postRepo.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	comments, err := p.commentRepo.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}

	return &PostDetail{Post: post, Comments: comments}, nil
}

func (p *postService) FindPost(ctx context.Context, postID string) (*models.Post, error) {
	return p.postRepo.GetPost(ctx, postID)
}

func (p *postService) CreatePost(ctx context.Context, author *models.AuthUser, req models.CreatePostRequest) (*models.Post, error) {
	if author == nil {
		return nil, ErrSignedOut
	}
	req.AuthorID = author.UID
	req.Author = author.Name()

	post, err := p.postRepo.AddPost(ctx, req)
	if err != nil {
		return nil, err
	}

	p.log.WithFields(logrus.Fields{"post_id": post.ID, "author_id": post.AuthorID}).Info("post created")
	return post, nil
}

func (p *postService) UpdatePost(ctx context.Context, postID string, req models.UpdatePostRequest) error {
	return p.postRepo.UpdatePost(ctx, postID, req)
}

func (p *postService) DeletePost(ctx context.Context, postID string) error {
	if err := p.postRepo.DeletePost(ctx, postID); err != nil {
		return err
	}

	p.log.WithField("post_id", postID).Info("post deleted")
	return nil
}

// AttachImage uploads a cover image and points the post's imageUrl at it.
func (p *postService) AttachImage(ctx context.Context, postID, fileName string, file io.Reader, size int64) (string, error) {
	if p.storage == nil {
		return "", ErrStorageDisabled
	}

	objectName, imageURL, err := p.storage.UploadImage(ctx, postID, fileName, file, size)
	if err != nil {
		return "", fmt.Errorf("ошибка загрузки изображения в MinIO: %w", err)
	}

	if err := p.postRepo.UpdatePost(ctx, postID, models.UpdatePostRequest{ImageURL: &imageURL}); err != nil {
		if delErr := p.storage.DeleteImage(ctx, objectName); delErr != nil {
			p.log.WithError(delErr).WithField("object", objectName).Warn("orphaned image left in storage")
		}
		return "", err
	}

	return imageURL, nil
}
