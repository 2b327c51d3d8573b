package domain

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// Action is the kind of event a history entry records.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Change field names. FieldAll carries a whole-task snapshot.
const (
	FieldAll         = "all"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldDueDate     = "dueDate"
	FieldStatus      = "status"
	FieldCompletedAt = "completedAt"
	FieldAttachments = "attachments"
	FieldTags        = "tags"
)

// ListDelimiter joins list values when a change is rendered.
const ListDelimiter = ", "

// ValueKind tags the variant held by a Value.
type ValueKind string

const (
	KindAbsent   ValueKind = "none"
	KindText     ValueKind = "text"
	KindNumber   ValueKind = "number"
	KindBool     ValueKind = "bool"
	KindList     ValueKind = "list"
	KindSnapshot ValueKind = "snapshot"
)

// Value is a history change value. Exactly one payload field is meaningful,
// selected by Kind.
type Value struct {
	Kind     ValueKind `json:"kind"`
	Text     string    `json:"text,omitempty"`
	Number   float64   `json:"number,omitempty"`
	Bool     bool      `json:"bool,omitempty"`
	List     []string  `json:"list,omitempty"`
	Snapshot *Task     `json:"snapshot,omitempty"`
}

func Absent() Value               { return Value{Kind: KindAbsent} }
func TextValue(s string) Value    { return Value{Kind: KindText, Text: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func BoolValue(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func ListValue(items []string) Value {
	return Value{Kind: KindList, List: slices.Clone(items)}
}

func SnapshotValue(t Task) Value {
	c := t.Clone()
	return Value{Kind: KindSnapshot, Snapshot: &c}
}

// TimeValue renders an optional timestamp; nil is absent.
func TimeValue(t *time.Time) Value {
	if t == nil {
		return Absent()
	}
	return TextValue(t.UTC().Format(time.RFC3339Nano))
}

// IsAbsent reports whether the value carries nothing. The zero Value is absent.
func (v Value) IsAbsent() bool { return v.Kind == "" || v.Kind == KindAbsent }

// Normalize renders the value for display.
func (v Value) Normalize() string {
	switch v.Kind {
	case KindText:
		return v.Text
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case KindBool:
		if v.Bool {
			return "yes"
		}
		return "no"
	case KindList:
		return strings.Join(v.List, ListDelimiter)
	case KindSnapshot:
		if v.Snapshot == nil {
			return "none"
		}
		return v.Snapshot.Title
	default:
		return "none"
	}
}

func (v Value) String() string { return v.Normalize() }

// Change records a single field transition.
type Change struct {
	Field    string `json:"field"`
	OldValue Value  `json:"oldValue"`
	NewValue Value  `json:"newValue"`
}

// HistoryEntry is an immutable audit record of one create, update or delete.
// TaskID is a back-reference only; the task may no longer exist.
type HistoryEntry struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"taskId"`
	OwnerID   string    `json:"ownerId"`
	Action    Action    `json:"action"`
	Changes   []Change  `json:"changes"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot returns the whole-task payload of a created or deleted entry.
func (e HistoryEntry) Snapshot() (Task, bool) {
	for _, c := range e.Changes {
		if c.Field != FieldAll {
			continue
		}
		if c.NewValue.Snapshot != nil {
			return c.NewValue.Snapshot.Clone(), true
		}
		if c.OldValue.Snapshot != nil {
			return c.OldValue.Snapshot.Clone(), true
		}
	}
	return Task{}, false
}

// CreatedEntry builds the history record for a new task.
func CreatedEntry(id string, t Task, at time.Time) HistoryEntry {
	return HistoryEntry{
		ID:        id,
		TaskID:    t.ID,
		OwnerID:   t.OwnerID,
		Action:    ActionCreated,
		Changes:   []Change{{Field: FieldAll, OldValue: Absent(), NewValue: SnapshotValue(t)}},
		Timestamp: at,
	}
}

// DeletedEntry builds the history record for a removed task.
func DeletedEntry(id string, t Task, at time.Time) HistoryEntry {
	return HistoryEntry{
		ID:        id,
		TaskID:    t.ID,
		OwnerID:   t.OwnerID,
		Action:    ActionDeleted,
		Changes:   []Change{{Field: FieldAll, OldValue: SnapshotValue(t), NewValue: Absent()}},
		Timestamp: at,
	}
}

// UpdatedEntry builds the history record for a modified task. changes must
// be non-empty.
func UpdatedEntry(id string, t Task, changes []Change, at time.Time) HistoryEntry {
	return HistoryEntry{
		ID:        id,
		TaskID:    t.ID,
		OwnerID:   t.OwnerID,
		Action:    ActionUpdated,
		Changes:   slices.Clone(changes),
		Timestamp: at,
	}
}

// Diff compares the mutable fields of two versions of a task and returns one
// change per differing field in a fixed field order. Identity and timestamp
// bookkeeping fields (id, ownerId, createdAt, updatedAt) are not compared.
func Diff(before, after Task) []Change {
	var changes []Change
	add := func(field string, differ bool, oldV, newV Value) {
		if differ {
			changes = append(changes, Change{Field: field, OldValue: oldV, NewValue: newV})
		}
	}
	add(FieldTitle, before.Title != after.Title, TextValue(before.Title), TextValue(after.Title))
	add(FieldDescription, before.Description != after.Description, TextValue(before.Description), TextValue(after.Description))
	add(FieldCategory, before.Category != after.Category, TextValue(before.Category), TextValue(after.Category))
	add(FieldDueDate, before.DueDate != after.DueDate, TextValue(before.DueDate), TextValue(after.DueDate))
	add(FieldStatus, before.Status != after.Status, TextValue(string(before.Status)), TextValue(string(after.Status)))
	add(FieldCompletedAt, !sameTime(before.CompletedAt, after.CompletedAt), TimeValue(before.CompletedAt), TimeValue(after.CompletedAt))
	add(FieldAttachments, !slices.Equal(before.Attachments, after.Attachments), attachmentsValue(before.Attachments), attachmentsValue(after.Attachments))
	add(FieldTags, !sameTags(before.Tags, after.Tags), tagsValue(before.Tags), tagsValue(after.Tags))
	return changes
}

func attachmentsValue(list []Attachment) Value {
	if len(list) == 0 {
		return Absent()
	}
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.FileName
	}
	return ListValue(names)
}

func tagsValue(tags []string) Value {
	if len(tags) == 0 {
		return Absent()
	}
	return ListValue(tags)
}

// sameTags compares tags as sets.
func sameTags(a, b []string) bool {
	x := slices.Compact(slices.Sorted(slices.Values(a)))
	y := slices.Compact(slices.Sorted(slices.Values(b)))
	return slices.Equal(x, y)
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// Revision is the new state of a task together with the changes that led to it.
type Revision struct {
	Task    Task
	Changes []Change
}

// Fields lists the changed field names.
func (r Revision) Fields() []string {
	out := make([]string, len(r.Changes))
	for i, c := range r.Changes {
		out[i] = c.Field
	}
	return out
}
