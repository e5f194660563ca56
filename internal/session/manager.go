package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"blogCPT/internal/clock"
	"blogCPT/internal/identity"
)

const CookieName = "blog_session"

var ErrInvalidSession = errors.New("invalid session")

// Session is one browser session with its own identity provider client and
// auth state.
type Session struct {
	ID       string
	State    *State
	Provider identity.Provider

	mu         sync.Mutex
	loginState string
	startedAt  time.Time
	expiresAt  time.Time
	unbind     func()
}

// BeginLogin issues the anti-forgery value sent through the provider's consent screen.
func (s *Session) BeginLogin() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginState = uuid.New().String()
	return s.loginState
}

// CompleteLogin checks and consumes the value issued by BeginLogin.
func (s *Session) CompleteLogin(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.loginState != "" && s.loginState == state
	s.loginState = ""
	return ok
}

type ManagerOptions struct {
	Secret string
	TTL    time.Duration
	// PendingTTL bounds how long a session that never signed in is kept.
	// Zero means 15 minutes.
	PendingTTL  time.Duration
	Secure      bool
	Clock       clock.Clock
	NewProvider func() identity.Provider
}

type Manager struct {
	secret      []byte
	ttl         time.Duration
	pendingTTL  time.Duration
	secure      bool
	clock       clock.Clock
	newProvider func() identity.Provider

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.System()
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 15 * time.Minute
	}
	return &Manager{
		secret:      []byte(opts.Secret),
		ttl:         opts.TTL,
		pendingTTL:  opts.PendingTTL,
		secure:      opts.Secure,
		clock:       opts.Clock,
		newProvider: opts.NewProvider,
		sessions:    make(map[string]*Session),
	}
}

// Start opens a signed-out session and returns it with its cookie token.
func (m *Manager) Start() (*Session, string, error) {
	now := m.clock.Now()
	s := &Session{
		ID:        uuid.New().String(),
		State:     NewState(),
		Provider:  m.newProvider(),
		startedAt: now,
		expiresAt: now.Add(m.ttl),
	}
	s.unbind = s.State.Bind(s.Provider)

	token, err := m.sign(s.ID, now)
	if err != nil {
		s.unbind()
		return nil, "", err
	}

	m.mu.Lock()
	expired := m.sweepLocked(now)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	for _, old := range expired {
		old.unbind()
	}
	return s, token, nil
}

// expired reports whether s is past its expiry, or was never signed in
// within the pending window.
func (m *Manager) expired(s *Session, now time.Time) bool {
	if !now.Before(s.expiresAt) {
		return true
	}
	return !s.State.SignedIn() && !now.Before(s.startedAt.Add(m.pendingTTL))
}

// sweepLocked drops expired sessions. Callers hold m.mu.
func (m *Manager) sweepLocked(now time.Time) []*Session {
	var expired []*Session
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	return expired
}

// Lookup resolves a cookie token to its live session.
func (m *Manager) Lookup(tokenString string) (*Session, error) {
	id, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && m.expired(s, m.clock.Now()) {
		delete(m.sessions, id)
		ok = false
		defer s.unbind()
	}
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: сессия %s не найдена", ErrInvalidSession, id)
	}
	return s, nil
}

// End signs the session out and forgets it. Ending an unknown session is a no-op.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return nil
	}

	err := s.Provider.SignOut(ctx)
	s.unbind()
	if err != nil {
		return fmt.Errorf("ошибка выхода из сессии: %w", err)
	}
	return nil
}

// Len reports how many sessions are held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) Cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  m.clock.Now().Add(m.ttl),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) sign(id string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sid": id,
		"exp": now.Add(m.ttl).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return tokenString, nil
}

func (m *Manager) parse(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("неожиданный метод подписи: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.clock.Now))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: неверный формат claims", ErrInvalidSession)
	}

	id, ok := claims["sid"].(string)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: нет идентификатора сессии", ErrInvalidSession)
	}
	return id, nil
}
