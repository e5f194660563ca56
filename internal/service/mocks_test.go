package service

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"blogCPT/internal/models"
)

type MockPostRepository struct {
	mock.Mock
}

func (m *MockPostRepository) ListPosts(ctx context.Context, pageSize int, cursor string) (models.PostsPage, error) {
	args := m.Called(ctx, pageSize, cursor)
	return args.Get(0).(models.PostsPage), args.Error(1)
}

func (m *MockPostRepository) RefreshPosts(ctx context.Context, pageSize int, cursor string) (models.PostsPage, error) {
	args := m.Called(ctx, pageSize, cursor)
	return args.Get(0).(models.PostsPage), args.Error(1)
}

func (m *MockPostRepository) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostRepository) AddPost(ctx context.Context, req models.CreatePostRequest) (*models.Post, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Post), args.Error(1)
}

func (m *MockPostRepository) UpdatePost(ctx context.Context, postID string, req models.UpdatePostRequest) error {
	args := m.Called(ctx, postID, req)
	return args.Error(0)
}

func (m *MockPostRepository) DeletePost(ctx context.Context, postID string) error {
	args := m.Called(ctx, postID)
	return args.Error(0)
}

type MockCommentRepository struct {
	mock.Mock
}

func (m *MockCommentRepository) ListComments(ctx context.Context, postID string) ([]models.Comment, error) {
	args := m.Called(ctx, postID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Comment), args.Error(1)
}

func (m *MockCommentRepository) AddComment(ctx context.Context, req models.CreateCommentRequest) (*models.Comment, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Comment), args.Error(1)
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) UploadImage(ctx context.Context, postID string, fileName string, file io.Reader, size int64) (string, string, error) {
	args := m.Called(ctx, postID, fileName, file, size)
	return args.String(0), args.String(1), args.Error(2)
}

func (m *MockStorage) DeleteImage(ctx context.Context, objectName string) error {
	args := m.Called(ctx, objectName)
	return args.Error(0)
}
