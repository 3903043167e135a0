package auth

import (
	"context"
	"sync"
)

// Provider is the identity surface the front-end consumes.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (User, error)
	SignOut()
	Current() (User, bool)
	// OnAuthChange calls fn with the new user, or nil after sign-out.
	OnAuthChange(fn func(*User))
}

// Session keeps the currently signed-in user on top of a Backend.
type Session struct {
	backend Backend

	mu        sync.Mutex
	current   *User
	observers []func(*User)
}

func NewSession(backend Backend) *Session {
	return &Session{backend: backend}
}

// SignIn replaces the current user on success and leaves it untouched on
// failure.
func (s *Session) SignIn(ctx context.Context, email, password string) (User, error) {
	u, err := s.backend.SignIn(ctx, email, password)
	if err != nil {
		return User{}, err
	}
	s.set(&u)
	return u, nil
}

func (s *Session) SignOut() {
	s.mu.Lock()
	signedIn := s.current != nil
	s.mu.Unlock()
	if signedIn {
		s.set(nil)
	}
}

func (s *Session) Current() (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return User{}, false
	}
	return *s.current, true
}

func (s *Session) OnAuthChange(fn func(*User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Session) set(u *User) {
	s.mu.Lock()
	s.current = u
	observers := append([]func(*User){}, s.observers...)
	s.mu.Unlock()

	for _, fn := range observers {
		if u == nil {
			fn(nil)
			continue
		}
		cp := *u
		fn(&cp)
	}
}
