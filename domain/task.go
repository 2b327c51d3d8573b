package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// DueDateLayout is the calendar date format used for Task.DueDate.
const DueDateLayout = "2006-01-02"

// Status is the board column a task lives in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Statuses lists the board columns in display order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusCompleted}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// ParseStatus accepts the canonical names case-insensitively. An empty value
// defaults to todo.
func ParseStatus(raw string) (Status, error) {
	v := Status(strings.ToLower(strings.TrimSpace(raw)))
	if v == "" {
		return StatusTodo, nil
	}
	if !v.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
	}
	return v, nil
}

// Attachment references an uploaded file.
type Attachment struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
}

// Task represents a single board item.
type Task struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"ownerId"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	DueDate     string       `json:"dueDate"`
	Status      Status       `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	CompletedAt *time.Time   `json:"completedAt"`
	Attachments []Attachment `json:"attachments"`
	Tags        []string     `json:"tags,omitempty"`
}

// Clone returns a deep copy so callers never share slices or pointers with
// the board state.
func (t Task) Clone() Task {
	out := t
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		out.CompletedAt = &c
	}
	out.Attachments = slices.Clone(t.Attachments)
	out.Tags = slices.Clone(t.Tags)
	return out
}

// Complete reports whether the task is in the completed column.
func (t Task) Complete() bool { return t.Status == StatusCompleted }

// WithStatus moves the task to s at time now. completedAt is set only when
// entering completed and kept when the task already was completed.
func (t Task) WithStatus(s Status, now time.Time) Task {
	out := t.Clone()
	out.Status = s
	switch {
	case s != StatusCompleted:
		out.CompletedAt = nil
	case t.Status != StatusCompleted || t.CompletedAt == nil:
		ts := now
		out.CompletedAt = &ts
	}
	return out
}

// TaskInput carries the user supplied fields of a new task.
type TaskInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    string       `json:"category"`
	DueDate     string       `json:"dueDate"`
	Status      Status       `json:"status"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// Input returns the user supplied fields of t.
func (t Task) Input() TaskInput {
	return TaskInput{
		Title:       t.Title,
		Description: t.Description,
		Category:    t.Category,
		DueDate:     t.DueDate,
		Status:      t.Status,
		Attachments: t.Attachments,
		Tags:        t.Tags,
	}
}

// Validate checks required fields and normalizes status and tags in place.
func (in *TaskInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return fmt.Errorf("%w: title is required", ErrValidation)
	}
	st, err := ParseStatus(string(in.Status))
	if err != nil {
		return err
	}
	in.Status = st
	if err := validateDueDate(in.DueDate); err != nil {
		return err
	}
	if err := validateAttachments(in.Attachments); err != nil {
		return err
	}
	in.Tags = NormalizeTags(in.Tags)
	return nil
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string       `json:"title,omitempty"`
	Description *string       `json:"description,omitempty"`
	Category    *string       `json:"category,omitempty"`
	DueDate     *string       `json:"dueDate,omitempty"`
	Status      *Status       `json:"status,omitempty"`
	Attachments *[]Attachment `json:"attachments,omitempty"`
	Tags        *[]string     `json:"tags,omitempty"`
}

// Empty reports whether the patch touches no field.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.DueDate == nil &&
		p.Status == nil && p.Attachments == nil && p.Tags == nil
}

func (p *TaskPatch) Validate() error {
	if p.Empty() {
		return fmt.Errorf("%w: update has no fields", ErrValidation)
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return fmt.Errorf("%w: title is required", ErrValidation)
		}
		p.Title = &title
	}
	if p.Status != nil {
		st, err := ParseStatus(string(*p.Status))
		if err != nil {
			return err
		}
		p.Status = &st
	}
	if p.DueDate != nil {
		if err := validateDueDate(*p.DueDate); err != nil {
			return err
		}
	}
	if p.Attachments != nil {
		if err := validateAttachments(*p.Attachments); err != nil {
			return err
		}
	}
	if p.Tags != nil {
		tags := NormalizeTags(*p.Tags)
		p.Tags = &tags
	}
	return nil
}

// Apply returns t with the patch fields overlaid. Status bookkeeping is left
// to WithStatus.
func (p TaskPatch) Apply(t Task) Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.DueDate != nil {
		out.DueDate = *p.DueDate
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Attachments != nil {
		out.Attachments = slices.Clone(*p.Attachments)
	}
	if p.Tags != nil {
		out.Tags = slices.Clone(*p.Tags)
	}
	return out
}

// NormalizeTags trims tags and drops blanks and duplicates, keeping first
// occurrence order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validateDueDate(v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse(DueDateLayout, v); err != nil {
		return fmt.Errorf("%w: dueDate must be YYYY-MM-DD", ErrValidation)
	}
	return nil
}

func validateAttachments(list []Attachment) error {
	for i, a := range list {
		if strings.TrimSpace(a.FileName) == "" {
			return fmt.Errorf("%w: attachment %d has no file name", ErrValidation, i)
		}
	}
	return nil
}
