package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// SortOrder orders tasks by due date.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// DateRange bounds due dates inclusively. It only applies when both ends are set.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Filter describes the derived board view. The zero Filter matches every
// task and sorts ascending.
type Filter struct {
	Title     string    `json:"title,omitempty"`
	Category  string    `json:"category,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	DateRange DateRange `json:"dateRange,omitempty"`
	SortOrder SortOrder `json:"sortOrder"`
}

// Normalize trims criteria and defaults the sort order.
func (f Filter) Normalize() (Filter, error) {
	out := Filter{
		Title:    strings.TrimSpace(f.Title),
		Category: strings.TrimSpace(f.Category),
		Tags:     NormalizeTags(f.Tags),
		DateRange: DateRange{
			Start: strings.TrimSpace(f.DateRange.Start),
			End:   strings.TrimSpace(f.DateRange.End),
		},
		SortOrder: SortOrder(strings.ToLower(strings.TrimSpace(string(f.SortOrder)))),
	}
	switch out.SortOrder {
	case "":
		out.SortOrder = SortAsc
	case SortAsc, SortDesc:
	default:
		return Filter{}, fmt.Errorf("%w: sortOrder must be asc or desc", ErrValidation)
	}
	for _, d := range []string{out.DateRange.Start, out.DateRange.End} {
		if err := validateDueDate(d); err != nil {
			return Filter{}, err
		}
	}
	return out, nil
}

// Match reports whether t satisfies every present criterion.
func (f Filter) Match(t Task) bool {
	if f.Title != "" && !strings.Contains(strings.ToLower(t.Title), strings.ToLower(f.Title)) {
		return false
	}
	if f.Category != "" && t.Category != f.Category {
		return false
	}
	for _, tag := range f.Tags {
		if !slices.Contains(t.Tags, tag) {
			return false
		}
	}
	if f.DateRange.Start != "" && f.DateRange.End != "" {
		due, ok := parseDue(t.DueDate)
		if !ok {
			return false
		}
		start, okStart := parseDue(f.DateRange.Start)
		end, okEnd := parseDue(f.DateRange.End)
		if okStart && due.Before(start) {
			return false
		}
		if okEnd && due.After(end) {
			return false
		}
	}
	return true
}

// Apply computes the derived view: the matching tasks ordered by due date.
// The input slice is not modified.
func Apply(tasks []Task, f Filter) []Task {
	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	SortByDueDate(out, f.SortOrder)
	return out
}

// SortByDueDate stably orders tasks by parsed due date. Tasks without a
// parseable due date go last in either order, keeping their relative order.
func SortByDueDate(tasks []Task, order SortOrder) {
	slices.SortStableFunc(tasks, func(a, b Task) int {
		da, okA := parseDue(a.DueDate)
		db, okB := parseDue(b.DueDate)
		switch {
		case !okA && !okB:
			return 0
		case !okA:
			return 1
		case !okB:
			return -1
		}
		c := da.Compare(db)
		if order == SortDesc {
			return -c
		}
		return c
	})
}

func parseDue(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DueDateLayout, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
