package domain

import (
	"errors"
	"testing"
)

func boardFixture() []Task {
	return []Task{
		{ID: "1", Title: "Buy milk", Category: "Shopping", DueDate: "2024-05-01", Tags: []string{"home", "errand"}},
		{ID: "2", Title: "Write report", Category: "Work", DueDate: "2024-04-15", Tags: []string{"office"}},
		{ID: "3", Title: "Buy bread", Category: "Shopping", DueDate: "2024-05-20", Tags: []string{"errand"}},
		{ID: "4", Title: "Call plumber", Category: "Home", DueDate: ""},
		{ID: "5", Title: "Milk the budget", Category: "Work", DueDate: "2024-05-01"},
	}
}

func ids(tasks []Task) string {
	out := ""
	for _, t := range tasks {
		out += t.ID
	}
	return out
}

func TestApplyFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		want   string
	}{
		{name: "empty filter sorts ascending", filter: Filter{}, want: "21534"},
		{name: "descending", filter: Filter{SortOrder: SortDesc}, want: "31524"},
		{name: "title is case insensitive", filter: Filter{Title: "MILK"}, want: "15"},
		{name: "category and title", filter: Filter{Category: "Shopping", Title: "milk"}, want: "1"},
		{name: "tag subset", filter: Filter{Tags: []string{"errand", "home"}}, want: "1"},
		{name: "date range inclusive", filter: Filter{DateRange: DateRange{Start: "2024-05-01", End: "2024-05-20"}}, want: "153"},
		{name: "half open range ignored", filter: Filter{DateRange: DateRange{Start: "2024-05-02"}}, want: "21534"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ids(Apply(boardFixture(), tt.filter)); got != tt.want {
				t.Fatalf("Apply() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSortKeepsFilteredOrderConsistent(t *testing.T) {
	for _, order := range []SortOrder{SortAsc, SortDesc} {
		all := boardFixture()
		SortByDueDate(all, order)
		filtered := Apply(boardFixture(), Filter{Category: "Work", SortOrder: order})

		pos := map[string]int{}
		for i, t := range all {
			pos[t.ID] = i
		}
		for i := 1; i < len(filtered); i++ {
			if pos[filtered[i-1].ID] > pos[filtered[i].ID] {
				t.Fatalf("order %s: filtered view diverges from full ordering: %s vs %s", order, ids(filtered), ids(all))
			}
		}
	}
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	tasks := boardFixture()
	Apply(tasks, Filter{SortOrder: SortDesc})
	if ids(tasks) != "12345" {
		t.Fatalf("input reordered: %s", ids(tasks))
	}
}

func TestFilterNormalize(t *testing.T) {
	f, err := Filter{Title: " milk ", SortOrder: "DESC", Tags: []string{"", "a"}}.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if f.Title != "milk" || f.SortOrder != SortDesc || len(f.Tags) != 1 {
		t.Fatalf("unexpected filter: %#v", f)
	}
	if _, err := (Filter{SortOrder: "sideways"}).Normalize(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := (Filter{DateRange: DateRange{Start: "yesterday", End: "2024-01-01"}}).Normalize(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for bad date, got %v", err)
	}
}
