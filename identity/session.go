package identity

import (
	"sync"

	"taskboard/domain"
)

// Verifier turns a bearer token into a principal id.
type Verifier interface {
	Verify(token string) (string, error)
}

// Session is the sign-in state of one client. It satisfies board.Principal.
type Session struct {
	verifier Verifier

	mu        sync.RWMutex
	principal string
	onSignOut []func()
}

func NewSession(v Verifier) *Session {
	if v == nil {
		panic("identity.NewSession: verifier is nil")
	}
	return &Session{verifier: v}
}

// OnSignOut registers fn to run whenever the principal is cleared or
// replaced by another one.
func (s *Session) OnSignOut(fn func()) {
	s.mu.Lock()
	s.onSignOut = append(s.onSignOut, fn)
	s.mu.Unlock()
}

// SignIn verifies token and makes its subject the current principal. Signing
// in as a different principal first signs the previous one out.
func (s *Session) SignIn(token string) (string, error) {
	id, err := s.verifier.Verify(token)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", domain.ErrAuthenticationRequired
	}
	s.mu.Lock()
	prev := s.principal
	s.principal = id
	hooks := s.onSignOut
	s.mu.Unlock()
	if prev != "" && prev != id {
		run(hooks)
	}
	return id, nil
}

// SignOut clears the principal. It is a no-op when nobody is signed in.
func (s *Session) SignOut() {
	s.mu.Lock()
	prev := s.principal
	s.principal = ""
	hooks := s.onSignOut
	s.mu.Unlock()
	if prev != "" {
		run(hooks)
	}
}

func (s *Session) CurrentPrincipal() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal, s.principal != ""
}

func run(hooks []func()) {
	for _, fn := range hooks {
		fn()
	}
}
