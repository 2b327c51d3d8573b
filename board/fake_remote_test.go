package board

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"taskboard/domain"
)

// fakeRemote is an in-memory store of record. hook, when set, runs before
// every call and may block it.
type fakeRemote struct {
	mu         sync.Mutex
	tasks      map[string]domain.Task
	history    []domain.HistoryEntry
	calls      []string
	err        error
	historyErr error
	hook       func(op string, ids []string)
}

func newFakeRemote(tasks ...domain.Task) *fakeRemote {
	r := &fakeRemote{tasks: map[string]domain.Task{}}
	for _, t := range tasks {
		r.tasks[t.ID] = t.Clone()
	}
	return r
}

func (r *fakeRemote) enter(op string, ids ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, op)
	hook := r.hook
	r.mu.Unlock()
	if hook != nil {
		hook(op, ids)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if op == "AppendHistory" {
		return r.historyErr
	}
	return r.err
}

func (r *fakeRemote) callCount(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (r *fakeRemote) writes() int {
	return r.callCount("CreateTask") + r.callCount("UpdateTask") + r.callCount("DeleteTask") +
		r.callCount("BatchUpdate") + r.callCount("BatchDelete")
}

func (r *fakeRemote) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if err := r.enter("ListTasks"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Task
	for _, t := range r.tasks {
		if t.OwnerID == ownerID {
			out = append(out, t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b domain.Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *fakeRemote) ListHistory(ctx context.Context, ownerID string) ([]domain.HistoryEntry, error) {
	if err := r.enter("ListHistory"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.HistoryEntry
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].OwnerID == ownerID {
			out = append(out, r.history[i])
		}
	}
	return out, nil
}

func (r *fakeRemote) CreateTask(ctx context.Context, task domain.Task) error {
	if err := r.enter("CreateTask", task.ID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[task.ID] = task.Clone()
	return nil
}

func (r *fakeRemote) UpdateTask(ctx context.Context, rev domain.Revision) error {
	if err := r.enter("UpdateTask", rev.Task.ID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[rev.Task.ID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, rev.Task.ID)
	}
	r.tasks[rev.Task.ID] = rev.Task.Clone()
	return nil
}

func (r *fakeRemote) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	if err := r.enter("DeleteTask", taskID); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
	return nil
}

func (r *fakeRemote) BatchUpdate(ctx context.Context, ownerID string, revs []domain.Revision) error {
	ids := make([]string, len(revs))
	for i, rev := range revs {
		ids[i] = rev.Task.ID
	}
	if err := r.enter("BatchUpdate", ids...); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rev := range revs {
		r.tasks[rev.Task.ID] = rev.Task.Clone()
	}
	return nil
}

func (r *fakeRemote) BatchDelete(ctx context.Context, ownerID string, taskIDs []string) error {
	if err := r.enter("BatchDelete", taskIDs...); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range taskIDs {
		delete(r.tasks, id)
	}
	return nil
}

func (r *fakeRemote) AppendHistory(ctx context.Context, ownerID string, entries []domain.HistoryEntry) error {
	if err := r.enter("AppendHistory"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, entries...)
	return nil
}

type fakePrincipal struct {
	mu sync.Mutex
	id string
}

func (p *fakePrincipal) CurrentPrincipal() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id, p.id != ""
}

func (p *fakePrincipal) set(id string) {
	p.mu.Lock()
	p.id = id
	p.mu.Unlock()
}

var testBase = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func sequentialIDs(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s%d", prefix, n.Add(1)) }
}

func seedTask(id, owner string, created time.Time) domain.Task {
	return domain.Task{
		ID:        id,
		OwnerID:   owner,
		Title:     "Task " + id,
		Category:  "work",
		DueDate:   "2024-06-01",
		Status:    domain.StatusTodo,
		CreatedAt: created,
		UpdatedAt: created,
	}
}
