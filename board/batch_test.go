package board

import (
	"context"
	"errors"
	"reflect"
	"slices"
	"testing"
	"time"

	"taskboard/domain"
)

func selectAll(t *testing.T, b *Board, ids ...string) {
	t.Helper()
	for _, id := range ids {
		on, err := b.ToggleSelection(id)
		if err != nil {
			t.Fatalf("toggle %s: %v", id, err)
		}
		if !on {
			t.Fatalf("expected %s selected", id)
		}
	}
}

func TestBatchUpdateSelectedCompletesAndClearsSelection(t *testing.T) {
	ctx := context.Background()
	b, remote, _ := loadedBoard(t, "alice",
		seedTask("a", "alice", testBase),
		seedTask("b", "alice", testBase),
		seedTask("c", "alice", testBase),
	)
	selectAll(t, b, "a", "b")

	updated, err := b.BatchUpdateSelected(ctx, domain.TaskPatch{Status: ptr(domain.StatusCompleted)})
	if err != nil {
		t.Fatalf("batch update: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("expected 2 updated tasks, got %d", len(updated))
	}
	if remote.callCount("BatchUpdate") != 1 || remote.callCount("UpdateTask") != 0 {
		t.Fatalf("expected a single grouped write, got %v", remote.calls)
	}

	snap := mustSnapshot(t, b)
	if len(snap.Selected) != 0 {
		t.Fatalf("expected selection cleared, got %v", snap.Selected)
	}
	for _, task := range snap.Tasks {
		completed := task.ID != "c"
		if (task.Status == domain.StatusCompleted) != completed || (task.CompletedAt != nil) != completed {
			t.Fatalf("unexpected task state %#v", task)
		}
	}
	var touched []string
	for _, e := range snap.History {
		if e.Action != domain.ActionUpdated {
			t.Fatalf("unexpected action %q", e.Action)
		}
		touched = append(touched, e.TaskID)
	}
	slices.Sort(touched)
	if !slices.Equal(touched, []string{"a", "b"}) {
		t.Fatalf("expected one entry per affected task, got %v", touched)
	}
}

func TestBatchDeleteSelected(t *testing.T) {
	ctx := context.Background()
	b, remote, _ := loadedBoard(t, "alice",
		seedTask("a", "alice", testBase),
		seedTask("b", "alice", testBase),
		seedTask("c", "alice", testBase),
	)
	selectAll(t, b, "a", "c")

	if err := b.BatchDeleteSelected(ctx); err != nil {
		t.Fatalf("batch delete: %v", err)
	}
	snap := mustSnapshot(t, b)
	if taskIDs(snap.Tasks) != "b" {
		t.Fatalf("unexpected remaining tasks %s", taskIDs(snap.Tasks))
	}
	if len(snap.Selected) != 0 || len(snap.History) != 2 {
		t.Fatalf("expected cleared selection and 2 history entries, got %v / %d", snap.Selected, len(snap.History))
	}
	for _, e := range snap.History {
		if e.Action != domain.ActionDeleted {
			t.Fatalf("unexpected action %q", e.Action)
		}
	}
	if remote.callCount("BatchDelete") != 1 || len(remote.tasks) != 1 {
		t.Fatalf("expected one grouped delete, got %v", remote.calls)
	}
}

func TestBatchWithForeignTaskIsAtomic(t *testing.T) {
	ctx := context.Background()
	b, remote, _ := loadedBoard(t, "alice", seedTask("a", "alice", testBase))
	_ = b.do(func(s *state) {
		s.insertHead(seedTask("x", "bob", testBase.Add(time.Minute)))
	})
	selectAll(t, b, "a", "x")
	before := mustSnapshot(t, b)
	writes := remote.writes()

	_, err := b.BatchUpdateSelected(ctx, domain.TaskPatch{Status: ptr(domain.StatusCompleted)})
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if err := b.BatchDeleteSelected(ctx); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied on delete, got %v", err)
	}

	after := mustSnapshot(t, b)
	if remote.writes() != writes {
		t.Fatalf("expected no remote writes")
	}
	if !reflect.DeepEqual(before.Tasks, after.Tasks) ||
		!reflect.DeepEqual(before.History, after.History) ||
		!reflect.DeepEqual(before.Selected, after.Selected) {
		t.Fatalf("expected tasks, history and selection unchanged")
	}
}

func TestBatchWithMissingTaskIsRejected(t *testing.T) {
	ctx := context.Background()
	b, remote, _ := loadedBoard(t, "alice", seedTask("a", "alice", testBase))

	if _, err := b.BatchUpdate(ctx, []string{"a", "ghost"}, domain.TaskPatch{Title: ptr("x")}); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if err := b.BatchDelete(ctx, []string{"ghost", "a"}); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound on delete, got %v", err)
	}
	if remote.writes() != 0 {
		t.Fatalf("expected no remote writes")
	}
	if snap := mustSnapshot(t, b); taskIDs(snap.Tasks) != "a" || snap.Tasks[0].Title != "Task a" {
		t.Fatalf("expected board untouched")
	}
}

func TestBatchSizeLimit(t *testing.T) {
	remote := newFakeRemote(
		seedTask("a", "alice", testBase),
		seedTask("b", "alice", testBase),
		seedTask("c", "alice", testBase),
	)
	b, _, _ := newTestBoard(t, remote, "alice", WithMaxBatch(2))
	if err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	err := b.BatchDelete(context.Background(), []string{"a", "b", "c"})
	if !errors.Is(err, domain.ErrValidation) || !errors.Is(err, domain.ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge validation error, got %v", err)
	}
	if err := b.BatchDelete(context.Background(), []string{"a", "a", "b"}); err != nil {
		t.Fatalf("duplicates should collapse under the limit: %v", err)
	}
}

func TestBatchUpdateWithoutChangesSkipsRemote(t *testing.T) {
	b, remote, _ := loadedBoard(t, "alice", seedTask("a", "alice", testBase))
	selectAll(t, b, "a")

	got, err := b.BatchUpdateSelected(context.Background(), domain.TaskPatch{Status: ptr(domain.StatusTodo)})
	if err != nil {
		t.Fatalf("batch update: %v", err)
	}
	if len(got) != 1 || remote.callCount("BatchUpdate") != 0 {
		t.Fatalf("expected no remote write, got %v", remote.calls)
	}
	snap := mustSnapshot(t, b)
	if len(snap.History) != 0 || len(snap.Selected) != 0 {
		t.Fatalf("expected no history and cleared selection")
	}
}

func TestBatchRejectsEmptyPatch(t *testing.T) {
	b, _, _ := loadedBoard(t, "alice", seedTask("a", "alice", testBase))
	if _, err := b.BatchUpdate(context.Background(), []string{"a"}, domain.TaskPatch{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestBatchRemoteFailureKeepsSelection(t *testing.T) {
	b, remote, _ := loadedBoard(t, "alice", seedTask("a", "alice", testBase))
	selectAll(t, b, "a")
	remote.err = errors.New("503")

	if err := b.BatchDeleteSelected(context.Background()); !errors.Is(err, domain.ErrRemoteUnavailable) {
		t.Fatalf("expected ErrRemoteUnavailable, got %v", err)
	}
	snap := mustSnapshot(t, b)
	if len(snap.Tasks) != 1 || !slices.Equal(snap.Selected, []string{"a"}) || snap.Status != StatusFailed {
		t.Fatalf("unexpected state after failed batch: %+v", snap)
	}
}

func TestToggleSelection(t *testing.T) {
	b, _, _ := loadedBoard(t, "alice", seedTask("a", "alice", testBase))

	on, err := b.ToggleSelection("a")
	if err != nil || !on {
		t.Fatalf("expected selected, got %v %v", on, err)
	}
	on, err = b.ToggleSelection("a")
	if err != nil || on {
		t.Fatalf("expected deselected, got %v %v", on, err)
	}
	if _, err := b.ToggleSelection("ghost"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	selectAll(t, b, "a")
	if err := b.ClearSelection(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if snap := mustSnapshot(t, b); len(snap.Selected) != 0 {
		t.Fatalf("expected empty selection")
	}
}

func TestHistoryViewNewestFirstWithDeletedTitle(t *testing.T) {
	ctx := context.Background()
	b, _, _ := loadedBoard(t, "alice")

	keep, err := b.Create(ctx, domain.TaskInput{Title: "Keep"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	gone, err := b.Create(ctx, domain.TaskInput{Title: "Gone"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	next := keep.Clone()
	next.Category = "home"
	if _, err := b.Update(ctx, next); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := b.Delete(ctx, gone.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	items, err := b.History("")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("expected 4 items, got %d", len(items))
	}
	if items[0].Entry.Action != domain.ActionDeleted || items[0].TaskTitle != DeletedTaskTitle {
		t.Fatalf("unexpected newest item %+v", items[0])
	}
	if items[0].Summary[0] != "Task was deleted" {
		t.Fatalf("unexpected summary %v", items[0].Summary)
	}
	if items[1].TaskTitle != "Keep" || items[1].Summary[0] != `Changed category from "" to "home"` {
		t.Fatalf("unexpected update item %+v", items[1])
	}

	only, err := b.History(keep.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(only) != 2 || only[1].Summary[0] != "Task was created" {
		t.Fatalf("unexpected per-task history %+v", only)
	}
}
