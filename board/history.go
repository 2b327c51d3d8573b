package board

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"taskboard/domain"
)

// DeletedTaskTitle labels history entries whose task is no longer on the board.
const DeletedTaskTitle = "Deleted Task"

// HistoryItem is a history entry prepared for display.
type HistoryItem struct {
	Entry     domain.HistoryEntry `json:"entry"`
	TaskTitle string              `json:"taskTitle"`
	Summary   []string            `json:"summary"`
}

// History returns the log newest first, limited to one task when taskID is
// not empty.
func (b *Board) History(taskID string) ([]HistoryItem, error) {
	var items []HistoryItem
	err := b.do(func(s *state) {
		titles := make(map[string]string, len(s.tasks))
		for _, t := range s.tasks {
			titles[t.ID] = t.Title
		}
		for i := len(s.history) - 1; i >= 0; i-- {
			e := s.history[i]
			if taskID != "" && e.TaskID != taskID {
				continue
			}
			title := titles[e.TaskID]
			if title == "" {
				title = DeletedTaskTitle
			}
			items = append(items, HistoryItem{Entry: e, TaskTitle: title, Summary: summarize(e)})
		}
	})
	return items, err
}

func summarize(e domain.HistoryEntry) []string {
	out := make([]string, 0, len(e.Changes))
	for _, c := range e.Changes {
		if c.Field == domain.FieldAll {
			if c.OldValue.IsAbsent() {
				out = append(out, "Task was created")
			} else {
				out = append(out, "Task was deleted")
			}
			continue
		}
		out = append(out, fmt.Sprintf("Changed %s from %q to %q", c.Field, c.OldValue.Normalize(), c.NewValue.Normalize()))
	}
	return out
}

// persistHistory stores confirmed entries remotely. The task write already
// succeeded, so a failure here is logged and not returned.
func (b *Board) persistHistory(ctx context.Context, owner string, entries []domain.HistoryEntry) {
	if len(entries) == 0 {
		return
	}
	if err := b.remote.AppendHistory(ctx, owner, entries); err != nil {
		b.logger.WithError(err).WithFields(log.Fields{"op": "append_history", "owner": owner, "count": len(entries)}).Warn("history not persisted")
	}
}
