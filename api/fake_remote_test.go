package api

import (
	"context"
	"slices"
	"sync"

	"taskboard/domain"
)

// memRemote is a minimal in-memory store of record.
type memRemote struct {
	mu      sync.Mutex
	tasks   map[string]domain.Task
	history []domain.HistoryEntry
	err     error
}

func newMemRemote(tasks ...domain.Task) *memRemote {
	r := &memRemote{tasks: map[string]domain.Task{}}
	for _, t := range tasks {
		r.tasks[t.ID] = t.Clone()
	}
	return r
}

func (r *memRemote) fail(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *memRemote) ListTasks(_ context.Context, ownerID string) ([]domain.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []domain.Task
	for _, t := range r.tasks {
		if t.OwnerID == ownerID {
			out = append(out, t.Clone())
		}
	}
	slices.SortFunc(out, func(a, b domain.Task) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *memRemote) ListHistory(_ context.Context, ownerID string) ([]domain.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []domain.HistoryEntry
	for _, e := range r.history {
		if e.OwnerID == ownerID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memRemote) CreateTask(_ context.Context, task domain.Task) error {
	return r.write(func() { r.tasks[task.ID] = task.Clone() })
}

func (r *memRemote) UpdateTask(_ context.Context, rev domain.Revision) error {
	return r.write(func() { r.tasks[rev.Task.ID] = rev.Task.Clone() })
}

func (r *memRemote) DeleteTask(_ context.Context, _ string, taskID string) error {
	return r.write(func() { delete(r.tasks, taskID) })
}

func (r *memRemote) BatchUpdate(_ context.Context, _ string, revs []domain.Revision) error {
	return r.write(func() {
		for _, rev := range revs {
			r.tasks[rev.Task.ID] = rev.Task.Clone()
		}
	})
}

func (r *memRemote) BatchDelete(_ context.Context, _ string, taskIDs []string) error {
	return r.write(func() {
		for _, id := range taskIDs {
			delete(r.tasks, id)
		}
	})
}

func (r *memRemote) AppendHistory(_ context.Context, _ string, entries []domain.HistoryEntry) error {
	return r.write(func() { r.history = append(r.history, entries...) })
}

func (r *memRemote) write(fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	fn()
	return nil
}

func (r *memRemote) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
