// Package board owns the in-memory task board of one principal and keeps it
// in step with the remote store.
//
// All state lives in a single goroutine. Every read and mutation is a closure
// sent to it, so the task list, selection and history log are never touched
// concurrently. Remote calls run on the caller's goroutine between a pending
// dispatch and a fulfilled or rejected dispatch; the loop stays free to serve
// snapshots while a request is in flight.
package board

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// DefaultMaxBatch matches the entity limit of a single table transaction.
const DefaultMaxBatch = 100

// ErrClosed is returned by operations on a closed board.
var ErrClosed = errors.New("board closed")

// Remote is the store of record. Implementations perform each call as one
// atomic unit; BatchUpdate and BatchDelete must be all-or-nothing.
type Remote interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	ListHistory(ctx context.Context, ownerID string) ([]domain.HistoryEntry, error)
	CreateTask(ctx context.Context, task domain.Task) error
	UpdateTask(ctx context.Context, rev domain.Revision) error
	DeleteTask(ctx context.Context, ownerID, taskID string) error
	BatchUpdate(ctx context.Context, ownerID string, revs []domain.Revision) error
	BatchDelete(ctx context.Context, ownerID string, taskIDs []string) error
	AppendHistory(ctx context.Context, ownerID string, entries []domain.HistoryEntry) error
}

// Principal exposes the signed-in user, if any.
type Principal interface {
	CurrentPrincipal() (string, bool)
}

// RequestStatus is the phase of the most recent request transition.
type RequestStatus string

const (
	StatusIdle      RequestStatus = "idle"
	StatusPending   RequestStatus = "pending"
	StatusSucceeded RequestStatus = "succeeded"
	StatusFailed    RequestStatus = "failed"
)

// Snapshot is a read-only copy of the board handed to presentation code.
type Snapshot struct {
	Tasks         []domain.Task         `json:"tasks"`
	FilteredTasks []domain.Task         `json:"filteredTasks"`
	Selected      []string              `json:"selectedTasks"`
	History       []domain.HistoryEntry `json:"history"`
	Filter        domain.Filter         `json:"filter"`
	Status        RequestStatus         `json:"status"`
	InFlight      int                   `json:"inFlight"`
	Error         string                `json:"error,omitempty"`
	Version       uint64                `json:"version"`
}

// Board is the task store of a single principal.
type Board struct {
	remote    Remote
	principal Principal
	clock     *domain.Clock
	newID     func() string
	logger    *log.Logger
	maxBatch  int

	inbox     chan func(*state)
	quit      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// Option customizes a Board.
type Option func(*Board)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(b *Board) { b.clock = domain.NewClock(now) }
}

// WithIDGenerator replaces the task and history id generator.
func WithIDGenerator(fn func() string) Option {
	return func(b *Board) { b.newID = fn }
}

func WithLogger(l *log.Logger) Option {
	return func(b *Board) { b.logger = l }
}

// WithMaxBatch caps the number of tasks in one batch operation.
func WithMaxBatch(n int) Option {
	return func(b *Board) {
		if n > 0 {
			b.maxBatch = n
		}
	}
}

// New starts a board. Close releases its goroutine.
func New(remote Remote, principal Principal, opts ...Option) *Board {
	if remote == nil {
		panic("board.New: remote is nil")
	}
	if principal == nil {
		panic("board.New: principal is nil")
	}
	b := &Board{
		remote:    remote,
		principal: principal,
		clock:     domain.NewClock(nil),
		newID:     uuid.NewString,
		logger:    log.StandardLogger(),
		maxBatch:  DefaultMaxBatch,
		inbox:     make(chan func(*state)),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run(newState())
	return b
}

func (b *Board) run(s *state) {
	defer close(b.stopped)
	for {
		select {
		case fn := <-b.inbox:
			before := s.version
			fn(s)
			if s.version != before {
				s.filtered = domain.Apply(s.tasks, s.filter)
				s.publish()
			}
		case <-b.quit:
			s.closeSubscribers()
			return
		}
	}
}

// do runs fn on the state goroutine and waits for it to finish.
func (b *Board) do(fn func(*state)) error {
	done := make(chan struct{})
	select {
	case b.inbox <- func(s *state) { fn(s); close(done) }:
		<-done
		return nil
	case <-b.quit:
		return ErrClosed
	}
}

// Close stops the state goroutine and closes every subscription.
func (b *Board) Close() {
	b.closeOnce.Do(func() { close(b.quit) })
	<-b.stopped
}

// Snapshot returns a copy of the current board.
func (b *Board) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := b.do(func(s *state) { snap = s.snapshot() })
	return snap, err
}

// Subscribe delivers a snapshot now and after every state change until ctx
// is done or the board is closed. Slow readers only see the latest snapshot.
func (b *Board) Subscribe(ctx context.Context) (<-chan Snapshot, error) {
	ch := make(chan Snapshot, 1)
	var id int
	err := b.do(func(s *state) {
		id = s.subscribe(ch)
		ch <- s.snapshot()
	})
	if err != nil {
		return nil, err
	}
	go func() {
		select {
		case <-ctx.Done():
			_ = b.do(func(s *state) { s.unsubscribe(id) })
		case <-b.quit:
		}
	}()
	return ch, nil
}

// Reset drops everything back to the initial empty board. Requests still in
// flight complete remotely but no longer touch the local state.
func (b *Board) Reset() error {
	return b.do(func(s *state) { s.reset() })
}

// SetFilter replaces the filter specification; the derived view recomputes
// immediately.
func (b *Board) SetFilter(f domain.Filter) (domain.Filter, error) {
	norm, err := f.Normalize()
	if err != nil {
		return domain.Filter{}, err
	}
	err = b.do(func(s *state) {
		s.filter = norm
		s.touch()
	})
	return norm, err
}
