package board

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// Refresh loads every task and history entry of the signed-in principal and
// replaces the local board with them. Overlapping refreshes are not ordered:
// whichever response resolves last wins.
func (b *Board) Refresh(ctx context.Context) error {
	owner, err := b.principalID()
	if err != nil {
		return err
	}
	ctx, end := b.span(ctx, "refresh", owner)

	var epoch uint64
	if err := b.do(func(s *state) {
		epoch = s.epoch
		s.begin()
	}); err != nil {
		end(err)
		return err
	}

	tasks, err := b.remote.ListTasks(ctx, owner)
	if err == nil {
		var history []domain.HistoryEntry
		history, err = b.remote.ListHistory(ctx, owner)
		if err == nil {
			b.loaded(epoch, owner, tasks, history)
			end(nil)
			return nil
		}
	}
	err = remoteErr(err)
	b.reject(epoch, "refresh", owner, err)
	end(err)
	return err
}

func (b *Board) loaded(epoch uint64, owner string, tasks []domain.Task, history []domain.HistoryEntry) {
	tasks = slices.DeleteFunc(slices.Clone(tasks), func(t domain.Task) bool { return t.OwnerID != owner })
	slices.SortStableFunc(tasks, func(a, c domain.Task) int { return c.CreatedAt.Compare(a.CreatedAt) })
	history = slices.Clone(history)
	slices.SortStableFunc(history, func(a, c domain.HistoryEntry) int { return a.Timestamp.Compare(c.Timestamp) })

	_ = b.do(func(s *state) {
		if s.epoch != epoch {
			return
		}
		s.tasks = cloneTasks(tasks)
		s.history = history
		s.selection.Retain(func(id string) bool { return s.index(id) >= 0 })
		s.succeed()
	})
	b.logger.WithFields(log.Fields{"op": "refresh", "owner": owner, "count": len(tasks)}).Debug("board loaded")
}

// Create persists a new task owned by the signed-in principal and inserts it
// at the head of the board.
func (b *Board) Create(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	owner, err := b.principalID()
	if err != nil {
		return domain.Task{}, err
	}
	if err := in.Validate(); err != nil {
		return domain.Task{}, err
	}
	ctx, end := b.span(ctx, "create", owner)

	var task domain.Task
	var epoch uint64
	if err := b.do(func(s *state) {
		id := b.newID()
		for s.index(id) >= 0 {
			id = b.newID()
		}
		now := b.clock.Now()
		task = domain.Task{
			ID:          id,
			OwnerID:     owner,
			Title:       in.Title,
			Description: in.Description,
			Category:    in.Category,
			DueDate:     in.DueDate,
			CreatedAt:   now,
			UpdatedAt:   now,
			Attachments: slices.Clone(in.Attachments),
			Tags:        slices.Clone(in.Tags),
		}.WithStatus(in.Status, now)
		epoch = s.epoch
		s.begin()
	}); err != nil {
		end(err)
		return domain.Task{}, err
	}

	if err := b.remote.CreateTask(ctx, task); err != nil {
		err = remoteErr(err)
		b.reject(epoch, "create", owner, err)
		end(err)
		return domain.Task{}, err
	}

	var entries []domain.HistoryEntry
	_ = b.do(func(s *state) {
		if s.epoch != epoch {
			return
		}
		s.insertHead(task)
		entry := domain.CreatedEntry(b.newID(), task, b.clock.Now())
		s.appendHistory(entry)
		entries = append(entries, entry)
		s.succeed()
	})
	b.persistHistory(ctx, owner, entries)
	b.logger.WithFields(log.Fields{"op": "create", "task": task.ID, "owner": owner}).Debug("task created")
	end(nil)
	return task, nil
}

// Update replaces the editable fields of an existing task. Identity fields
// and timestamps of the argument are ignored; updatedAt and completedAt are
// derived here. An update that changes nothing returns the stored task
// without contacting the remote store.
func (b *Board) Update(ctx context.Context, task domain.Task) (domain.Task, error) {
	owner, err := b.principalID()
	if err != nil {
		return domain.Task{}, err
	}
	in := task.Input()
	if err := in.Validate(); err != nil {
		return domain.Task{}, err
	}

	var rev domain.Revision
	var noop bool
	var epoch uint64
	var opErr error
	if err := b.do(func(s *state) {
		cur, err := authorize(s, owner, task.ID)
		if err != nil {
			opErr = err
			return
		}
		if task.OwnerID != "" && task.OwnerID != cur.OwnerID {
			opErr = fmt.Errorf("%w: owner of task %s cannot change", domain.ErrPermissionDenied, task.ID)
			return
		}
		now := b.clock.Now()
		next := cur.Clone()
		next.Title = in.Title
		next.Description = in.Description
		next.Category = in.Category
		next.DueDate = in.DueDate
		next.Attachments = slices.Clone(in.Attachments)
		next.Tags = slices.Clone(in.Tags)
		next = next.WithStatus(in.Status, now)
		changes := domain.Diff(cur, next)
		if len(changes) == 0 {
			noop = true
			rev.Task = cur
			return
		}
		next.UpdatedAt = domain.NotBefore(now, cur.UpdatedAt)
		rev = domain.Revision{Task: next, Changes: changes}
		epoch = s.epoch
		s.begin()
	}); err != nil {
		return domain.Task{}, err
	}
	if opErr != nil {
		b.logger.WithError(opErr).WithFields(log.Fields{"op": "update", "task": task.ID, "owner": owner}).Warn("update rejected")
		return domain.Task{}, opErr
	}
	if noop {
		return rev.Task, nil
	}

	ctx, end := b.span(ctx, "update", owner)
	if err := b.remote.UpdateTask(ctx, rev); err != nil {
		err = remoteErr(err)
		b.reject(epoch, "update", owner, err)
		end(err)
		return domain.Task{}, err
	}

	result := rev.Task
	var entries []domain.HistoryEntry
	_ = b.do(func(s *state) {
		if s.epoch != epoch {
			return
		}
		if applied, entry, ok := b.applyRevision(s, rev); ok {
			result = applied
			entries = append(entries, entry)
		}
		s.succeed()
	})
	b.persistHistory(ctx, owner, entries)
	b.logger.WithFields(log.Fields{"op": "update", "task": rev.Task.ID, "owner": owner, "fields": rev.Fields()}).Debug("task updated")
	end(nil)
	return result, nil
}

// Move is the drop handler of the board: it moves a task to another status
// column through Update. Dropping a task on its own column does nothing.
func (b *Board) Move(ctx context.Context, taskID string, dest domain.Status) (domain.Task, error) {
	if _, err := b.principalID(); err != nil {
		return domain.Task{}, err
	}
	if !dest.Valid() {
		return domain.Task{}, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, dest)
	}
	var cur domain.Task
	var found bool
	if err := b.do(func(s *state) { cur, found = s.get(taskID) }); err != nil {
		return domain.Task{}, err
	}
	if !found {
		return domain.Task{}, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	if cur.Status == dest {
		return cur, nil
	}
	next := cur.Clone()
	next.Status = dest
	return b.Update(ctx, next)
}

// Delete removes a task owned by the signed-in principal.
func (b *Board) Delete(ctx context.Context, taskID string) error {
	owner, err := b.principalID()
	if err != nil {
		return err
	}

	var epoch uint64
	var opErr error
	if err := b.do(func(s *state) {
		if _, opErr = authorize(s, owner, taskID); opErr != nil {
			return
		}
		epoch = s.epoch
		s.begin()
	}); err != nil {
		return err
	}
	if opErr != nil {
		b.logger.WithError(opErr).WithFields(log.Fields{"op": "delete", "task": taskID, "owner": owner}).Warn("delete rejected")
		return opErr
	}

	ctx, end := b.span(ctx, "delete", owner)
	if err := b.remote.DeleteTask(ctx, owner, taskID); err != nil {
		err = remoteErr(err)
		b.reject(epoch, "delete", owner, err)
		end(err)
		return err
	}

	var entries []domain.HistoryEntry
	_ = b.do(func(s *state) {
		if s.epoch != epoch {
			return
		}
		if gone, ok := s.remove(taskID); ok {
			entry := domain.DeletedEntry(b.newID(), gone, b.clock.Now())
			s.appendHistory(entry)
			entries = append(entries, entry)
		}
		s.succeed()
	})
	b.persistHistory(ctx, owner, entries)
	b.logger.WithFields(log.Fields{"op": "delete", "task": taskID, "owner": owner}).Debug("task deleted")
	end(nil)
	return nil
}

// applyRevision writes a confirmed revision into the board. The change set
// is recomputed against the current copy because another request may have
// completed in between; a revision that no longer changes anything, or whose
// task is gone, leaves the board untouched.
func (b *Board) applyRevision(s *state, rev domain.Revision) (domain.Task, domain.HistoryEntry, bool) {
	cur, ok := s.get(rev.Task.ID)
	if !ok {
		return domain.Task{}, domain.HistoryEntry{}, false
	}
	changes := domain.Diff(cur, rev.Task)
	if len(changes) == 0 {
		return domain.Task{}, domain.HistoryEntry{}, false
	}
	next := rev.Task.Clone()
	next.OwnerID = cur.OwnerID
	next.CreatedAt = cur.CreatedAt
	next.UpdatedAt = latest(next.UpdatedAt, cur.UpdatedAt)
	s.replace(next)
	entry := domain.UpdatedEntry(b.newID(), next, changes, b.clock.Now())
	s.appendHistory(entry)
	return next, entry, true
}

func (b *Board) reject(epoch uint64, op, owner string, err error) {
	_ = b.do(func(s *state) {
		if s.epoch == epoch {
			s.fail(err)
		}
	})
	b.logger.WithError(err).WithFields(log.Fields{"op": op, "owner": owner}).Error("remote request failed")
}

func latest(a, c time.Time) time.Time {
	if cmp.Compare(a.UnixNano(), c.UnixNano()) >= 0 {
		return a
	}
	return c
}
