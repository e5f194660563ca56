package service

import (
	"context"

	"blogCPT/internal/models"
	"blogCPT/internal/repository"
)

type CommentService interface {
	ListComments(ctx context.Context, postID string) ([]models.Comment, error)
	// AddComment posts content under postID. A nil author comments anonymously.
	AddComment(ctx context.Context, postID string, author *models.AuthUser, content string) (*models.Comment, error)
}

type commentService struct {
	postRepo    repository.PostRepository
	commentRepo repository.CommentRepository
}

func NewCommentService(postRepo repository.PostRepository, commentRepo repository.CommentRepository) CommentService {
	return &commentService{postRepo: postRepo, commentRepo: commentRepo}
}

func (c *commentService) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	if _, err := c.postRepo.GetPost(ctx, postID); err != nil {
		return nil, err
	}
	return c.commentRepo.ListComments(ctx, postID)
}

func (c *commentService) AddComment(ctx context.Context, postID string, author *models.AuthUser, content string) (*models.Comment, error) {
	if _, err := c.postRepo.GetPost(ctx, postID); err != nil {
		return nil, err
	}

	req := models.CreateCommentRequest{
		PostID:  postID,
		Content: content,
		Author:  author.Name(),
	}
	if author != nil {
		req.AuthorID = author.UID
	}

	return c.commentRepo.AddComment(ctx, req)
}
