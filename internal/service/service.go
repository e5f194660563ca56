package service

import (
	"github.com/sirupsen/logrus"

	"blogCPT/internal/repository"
	"blogCPT/internal/session"
	"blogCPT/internal/storage"
)

type Service struct {
	Post    PostService
	Comment CommentService
	Auth    AuthService
}

func NewService(rep *repository.Repository, sessions *session.Manager, storage storage.Storage, pageSize int, log logrus.FieldLogger) *Service {
	return &Service{
		Post:    NewPostService(rep.Post, rep.Comment, storage, pageSize, log),
		Comment: NewCommentService(rep.Post, rep.Comment),
		Auth:    NewAuthService(sessions, log),
	}
}
