package board

import (
	"context"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"taskboard/domain"
)

// BatchUpdate applies one patch to every listed task in a single remote
// write. Every id must resolve to a task owned by the signed-in principal;
// otherwise nothing is written and the board, history and selection are left
// as they were. On success the selection is cleared.
func (b *Board) BatchUpdate(ctx context.Context, taskIDs []string, patch domain.TaskPatch) ([]domain.Task, error) {
	owner, err := b.principalID()
	if err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	ids, err := b.batchIDs(taskIDs)
	if err != nil || len(ids) == 0 {
		return nil, err
	}

	var revs []domain.Revision
	var unchanged []domain.Task
	var epoch uint64
	var opErr error
	if err := b.do(func(s *state) {
		current, err := authorizeAll(s, owner, ids)
		if err != nil {
			opErr = err
			return
		}
		now := b.clock.Now()
		for _, cur := range current {
			next := patch.Apply(cur)
			next.Status = cur.Status
			target := cur.Status
			if patch.Status != nil {
				target = *patch.Status
			}
			next = next.WithStatus(target, now)
			changes := domain.Diff(cur, next)
			if len(changes) == 0 {
				unchanged = append(unchanged, cur)
				continue
			}
			next.UpdatedAt = domain.NotBefore(now, cur.UpdatedAt)
			revs = append(revs, domain.Revision{Task: next, Changes: changes})
		}
		if len(revs) == 0 {
			s.selection.Clear()
			s.touch()
			return
		}
		epoch = s.epoch
		s.begin()
	}); err != nil {
		return nil, err
	}
	if opErr != nil {
		b.logger.WithError(opErr).WithFields(log.Fields{"op": "batch_update", "owner": owner, "count": len(ids)}).Warn("batch rejected")
		return nil, opErr
	}
	if len(revs) == 0 {
		return unchanged, nil
	}

	ctx, end := b.span(ctx, "batch_update", owner, attribute.Int("board.batch_size", len(revs)))
	if err := b.remote.BatchUpdate(ctx, owner, revs); err != nil {
		err = remoteErr(err)
		b.reject(epoch, "batch_update", owner, err)
		end(err)
		return nil, err
	}

	result := slices.Clone(unchanged)
	var entries []domain.HistoryEntry
	_ = b.do(func(s *state) {
		if s.epoch != epoch {
			return
		}
		for _, rev := range revs {
			if applied, entry, ok := b.applyRevision(s, rev); ok {
				result = append(result, applied)
				entries = append(entries, entry)
			}
		}
		s.selection.Clear()
		s.succeed()
	})
	b.persistHistory(ctx, owner, entries)
	b.logger.WithFields(log.Fields{"op": "batch_update", "owner": owner, "count": len(revs)}).Debug("batch updated")
	end(nil)
	return result, nil
}

// BatchDelete removes every listed task in a single remote write, with the
// same all-or-nothing ownership check as BatchUpdate.
func (b *Board) BatchDelete(ctx context.Context, taskIDs []string) error {
	owner, err := b.principalID()
	if err != nil {
		return err
	}
	ids, err := b.batchIDs(taskIDs)
	if err != nil || len(ids) == 0 {
		return err
	}

	var epoch uint64
	var opErr error
	if err := b.do(func(s *state) {
		if _, opErr = authorizeAll(s, owner, ids); opErr != nil {
			return
		}
		epoch = s.epoch
		s.begin()
	}); err != nil {
		return err
	}
	if opErr != nil {
		b.logger.WithError(opErr).WithFields(log.Fields{"op": "batch_delete", "owner": owner, "count": len(ids)}).Warn("batch rejected")
		return opErr
	}

	ctx, end := b.span(ctx, "batch_delete", owner, attribute.Int("board.batch_size", len(ids)))
	if err := b.remote.BatchDelete(ctx, owner, ids); err != nil {
		err = remoteErr(err)
		b.reject(epoch, "batch_delete", owner, err)
		end(err)
		return err
	}

	var entries []domain.HistoryEntry
	_ = b.do(func(s *state) {
		if s.epoch != epoch {
			return
		}
		for _, id := range ids {
			if gone, ok := s.remove(id); ok {
				entry := domain.DeletedEntry(b.newID(), gone, b.clock.Now())
				s.appendHistory(entry)
				entries = append(entries, entry)
			}
		}
		s.selection.Clear()
		s.succeed()
	})
	b.persistHistory(ctx, owner, entries)
	b.logger.WithFields(log.Fields{"op": "batch_delete", "owner": owner, "count": len(ids)}).Debug("batch deleted")
	end(nil)
	return nil
}

// BatchUpdateSelected runs BatchUpdate over the current selection.
func (b *Board) BatchUpdateSelected(ctx context.Context, patch domain.TaskPatch) ([]domain.Task, error) {
	ids, err := b.selected()
	if err != nil {
		return nil, err
	}
	return b.BatchUpdate(ctx, ids, patch)
}

// BatchDeleteSelected runs BatchDelete over the current selection.
func (b *Board) BatchDeleteSelected(ctx context.Context) error {
	ids, err := b.selected()
	if err != nil {
		return err
	}
	return b.BatchDelete(ctx, ids)
}

// ToggleSelection flips the membership of a task in the selection and
// reports whether it is selected afterwards. Only tasks on the board can be
// selected.
func (b *Board) ToggleSelection(taskID string) (bool, error) {
	var selected bool
	var found bool
	err := b.do(func(s *state) {
		if s.index(taskID) < 0 {
			return
		}
		found = true
		selected = s.selection.Toggle(taskID)
		s.touch()
	})
	if err != nil {
		return false, err
	}
	if !found {
		return false, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}
	return selected, nil
}

func (b *Board) ClearSelection() error {
	return b.do(func(s *state) {
		if s.selection.Len() > 0 {
			s.selection.Clear()
			s.touch()
		}
	})
}

func (b *Board) selected() ([]string, error) {
	var ids []string
	err := b.do(func(s *state) { ids = s.selection.IDs() })
	return ids, err
}

// batchIDs drops duplicate ids and enforces the batch size limit.
func (b *Board) batchIDs(taskIDs []string) ([]string, error) {
	ids := make([]string, 0, len(taskIDs))
	for _, id := range taskIDs {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if len(ids) > b.maxBatch {
		return nil, fmt.Errorf("%w: %w: %d tasks, limit %d", domain.ErrValidation, domain.ErrBatchTooLarge, len(ids), b.maxBatch)
	}
	return ids, nil
}
