// Package session holds the signed-in identity of each browser session.
//
// A State is a single slot: either signed out (nil) or one AuthUser. Its only
// writer is the identity provider it is bound to; everything else reads it.
package session

import (
	"sync"

	"blogCPT/internal/identity"
	"blogCPT/internal/models"
)

type State struct {
	mu       sync.RWMutex
	user     *models.AuthUser
	watchers map[int]func(*models.AuthUser)
	nextID   int
}

func NewState() *State {
	return &State{watchers: make(map[int]func(*models.AuthUser))}
}

// Current returns a copy of the signed-in user, or nil when signed out.
func (s *State) Current() *models.AuthUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clone(s.user)
}

func (s *State) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// Owns reports whether the signed-in user wrote the content with authorID.
func (s *State) Owns(authorID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && authorID != "" && s.user.UID == authorID
}

// Watch calls fn after every change of the user until the returned func is called.
func (s *State) Watch(fn func(*models.AuthUser)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.watchers, id)
		s.mu.Unlock()
	}
}

// Bind makes p the writer of s: every auth state change p reports is applied
// to s. The returned func detaches it.
func (s *State) Bind(p identity.Provider) (unbind func()) {
	return p.OnAuthStateChanged(func(u *models.AuthUser) {
		if u == nil {
			s.clearUser()
			return
		}
		s.setUser(u)
	})
}

func (s *State) setUser(u *models.AuthUser) {
	s.apply(clone(u))
}

func (s *State) clearUser() {
	s.apply(nil)
}

// apply stores u and notifies watchers. An identical payload changes nothing.
func (s *State) apply(u *models.AuthUser) {
	s.mu.Lock()
	if s.user.Equal(u) {
		s.mu.Unlock()
		return
	}
	s.user = u
	watchers := make([]func(*models.AuthUser), 0, len(s.watchers))
	for _, fn := range s.watchers {
		watchers = append(watchers, fn)
	}
	s.mu.Unlock()

	for _, fn := range watchers {
		fn(clone(u))
	}
}

func clone(u *models.AuthUser) *models.AuthUser {
	if u == nil {
		return nil
	}
	out := &models.AuthUser{UID: u.UID}
	out.DisplayName = cloneString(u.DisplayName)
	out.Email = cloneString(u.Email)
	out.PhotoURL = cloneString(u.PhotoURL)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
