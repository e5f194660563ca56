package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"blogCPT/internal/models"
	"blogCPT/internal/session"
)

var (
	ErrSignedOut         = errors.New("требуется вход в систему")
	ErrInvalidLoginState = errors.New("недействительный параметр state")
)

type AuthService interface {
	StartSession() (*session.Session, string, error)
	ResolveSession(token string) (*session.Session, error)
	// LoginURL sends the session's browser to the provider's account chooser.
	LoginURL(s *session.Session) string
	CompleteLogin(ctx context.Context, s *session.Session, state, code string) (*models.AuthUser, error)
	Logout(ctx context.Context, s *session.Session) error
	// CurrentUser reads the session's identity, re-reading the profile first when refresh is set.
	CurrentUser(ctx context.Context, s *session.Session, refresh bool) (*models.AuthUser, error)
	SessionCookie(token string) *http.Cookie
	ClearSessionCookie() *http.Cookie
}

type authService struct {
	sessions *session.Manager
	log      logrus.FieldLogger
}

func NewAuthService(sessions *session.Manager, log logrus.FieldLogger) AuthService {
	return &authService{sessions: sessions, log: log}
}

func (s *authService) StartSession() (*session.Session, string, error) {
	sess, token, err := s.sessions.Start()
	if err != nil {
		return nil, "", fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return sess, token, nil
}

func (s *authService) ResolveSession(token string) (*session.Session, error) {
	return s.sessions.Lookup(token)
}

func (s *authService) LoginURL(sess *session.Session) string {
	return sess.Provider.AuthCodeURL(sess.BeginLogin())
}

func (s *authService) CompleteLogin(ctx context.Context, sess *session.Session, state, code string) (*models.AuthUser, error) {
	if !sess.CompleteLogin(state) {
		return nil, ErrInvalidLoginState
	}

	user, err := sess.Provider.SignIn(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("ошибка аутентификации: %w", err)
	}

	s.log.WithFields(logrus.Fields{"session_id": sess.ID, "uid": user.UID}).Info("signed in")
	return sess.State.Current(), nil
}

func (s *authService) Logout(ctx context.Context, sess *session.Session) error {
	if err := s.sessions.End(ctx, sess.ID); err != nil {
		return err
	}
	s.log.WithField("session_id", sess.ID).Info("signed out")
	return nil
}

func (s *authService) CurrentUser(ctx context.Context, sess *session.Session, refresh bool) (*models.AuthUser, error) {
	if refresh {
		if _, err := sess.Provider.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("ошибка обновления профиля: %w", err)
		}
	}
	return sess.State.Current(), nil
}

func (s *authService) SessionCookie(token string) *http.Cookie {
	return s.sessions.Cookie(token)
}

func (s *authService) ClearSessionCookie() *http.Cookie {
	return s.sessions.ClearCookie()
}
