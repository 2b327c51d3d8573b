package api

import (
	"sync"

	"taskboard/board"
	"taskboard/identity"
)

type workspace struct {
	session *identity.Session
	board   *board.Board
}

// Workspaces holds one board per principal. A board lives from the first
// sign-in until Close; signing out resets it.
type Workspaces struct {
	auth   Authenticator
	remote board.Remote
	opts   []board.Option

	mu     sync.Mutex
	byUser map[string]*workspace
}

func NewWorkspaces(auth Authenticator, remote board.Remote, opts ...board.Option) *Workspaces {
	return &Workspaces{
		auth:   auth,
		remote: remote,
		opts:   opts,
		byUser: make(map[string]*workspace),
	}
}

func (w *Workspaces) open(principalID string) *workspace {
	w.mu.Lock()
	defer w.mu.Unlock()
	if ws, ok := w.byUser[principalID]; ok {
		return ws
	}
	s := identity.NewSession(w.auth)
	b := board.New(w.remote, s, w.opts...)
	s.OnSignOut(func() { _ = b.Reset() })
	ws := &workspace{session: s, board: b}
	w.byUser[principalID] = ws
	return ws
}

func (w *Workspaces) lookup(principalID string) (*workspace, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ws, ok := w.byUser[principalID]
	return ws, ok
}

// Close stops every board.
func (w *Workspaces) Close() {
	w.mu.Lock()
	spaces := w.byUser
	w.byUser = make(map[string]*workspace)
	w.mu.Unlock()
	for _, ws := range spaces {
		ws.board.Close()
	}
}
