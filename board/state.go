package board

import (
	"slices"

	"taskboard/domain"
)

// state is owned by the board goroutine. Nothing outside run touches it.
type state struct {
	tasks     []domain.Task // most recent first
	history   []domain.HistoryEntry
	selection domain.Selection
	filter    domain.Filter
	filtered  []domain.Task

	status   RequestStatus
	inFlight int
	err      string

	// epoch changes on reset so late completions of old requests are dropped.
	epoch   uint64
	version uint64

	subs   map[int]chan Snapshot
	nextID int
}

func newState() *state {
	return &state{
		filter: domain.Filter{SortOrder: domain.SortAsc},
		status: StatusIdle,
		subs:   map[int]chan Snapshot{},
	}
}

func (s *state) touch() { s.version++ }

func (s *state) reset() {
	s.tasks = nil
	s.history = nil
	s.selection.Clear()
	s.filter = domain.Filter{SortOrder: domain.SortAsc}
	s.status = StatusIdle
	s.inFlight = 0
	s.err = ""
	s.epoch++
	s.touch()
}

func (s *state) index(id string) int {
	return slices.IndexFunc(s.tasks, func(t domain.Task) bool { return t.ID == id })
}

func (s *state) get(id string) (domain.Task, bool) {
	i := s.index(id)
	if i < 0 {
		return domain.Task{}, false
	}
	return s.tasks[i].Clone(), true
}

func (s *state) insertHead(t domain.Task) {
	s.tasks = slices.Insert(s.tasks, 0, t.Clone())
}

func (s *state) replace(t domain.Task) bool {
	i := s.index(t.ID)
	if i < 0 {
		return false
	}
	s.tasks[i] = t.Clone()
	return true
}

func (s *state) remove(id string) (domain.Task, bool) {
	i := s.index(id)
	if i < 0 {
		return domain.Task{}, false
	}
	t := s.tasks[i]
	s.tasks = slices.Delete(s.tasks, i, i+1)
	s.selection.Retain(func(sel string) bool { return sel != id })
	return t, true
}

// appendHistory is the only write path into the history log.
func (s *state) appendHistory(entries ...domain.HistoryEntry) {
	s.history = append(s.history, entries...)
}

// begin, succeed and fail implement the three request phases.
func (s *state) begin() {
	s.inFlight++
	s.status = StatusPending
	s.err = ""
	s.touch()
}

func (s *state) succeed() {
	s.settle()
	s.status = StatusSucceeded
	s.touch()
}

func (s *state) fail(err error) {
	s.settle()
	s.status = StatusFailed
	s.err = err.Error()
	s.touch()
}

func (s *state) settle() {
	if s.inFlight > 0 {
		s.inFlight--
	}
}

func (s *state) snapshot() Snapshot {
	tasks := cloneTasks(s.tasks)
	domain.SortByDueDate(tasks, s.filter.SortOrder)
	history := make([]domain.HistoryEntry, len(s.history))
	copy(history, s.history)
	filter := s.filter
	filter.Tags = slices.Clone(s.filter.Tags)
	return Snapshot{
		Tasks:         tasks,
		FilteredTasks: cloneTasks(s.filtered),
		Selected:      s.selection.IDs(),
		History:       history,
		Filter:        filter,
		Status:        s.status,
		InFlight:      s.inFlight,
		Error:         s.err,
		Version:       s.version,
	}
}

func (s *state) subscribe(ch chan Snapshot) int {
	s.nextID++
	s.subs[s.nextID] = ch
	return s.nextID
}

func (s *state) unsubscribe(id int) {
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *state) closeSubscribers() {
	for id := range s.subs {
		s.unsubscribe(id)
	}
}

// publish replaces any unread snapshot with the current one.
func (s *state) publish() {
	if len(s.subs) == 0 {
		return
	}
	snap := s.snapshot()
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}

func cloneTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
