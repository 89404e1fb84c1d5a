package session

import (
	"sort"
	"strconv"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

type projectEvents struct {
	ids    map[string]struct{}
	events []types.CallEvent
}

// EventStore keeps the raw call events of every project for the lifetime of
// a service. Values are replaced, never mutated, so readers get a stable
// snapshot without locking.
type EventStore struct {
	projects *xsync.Map[string, *projectEvents]
}

// NewEventStore creates an empty store
func NewEventStore() *EventStore {
	return &EventStore{projects: xsync.NewMap[string, *projectEvents]()}
}

// Merge adds events to a project and returns how many were new. Events are
// de-duplicated by ID; events without an ID are keyed by caller, entrypoint
// and time.
func (s *EventStore) Merge(project string, events []types.CallEvent) int {
	added := 0
	s.projects.Compute(project, func(old *projectEvents, loaded bool) (*projectEvents, xsync.ComputeOp) {
		next := &projectEvents{ids: make(map[string]struct{}, len(events))}
		if loaded {
			next.ids = make(map[string]struct{}, len(old.ids)+len(events))
			for id := range old.ids {
				next.ids[id] = struct{}{}
			}
			next.events = append(make([]types.CallEvent, 0, len(old.events)+len(events)), old.events...)
		}

		for _, ev := range events {
			id := eventID(ev)
			if _, seen := next.ids[id]; seen {
				continue
			}
			next.ids[id] = struct{}{}
			next.events = append(next.events, ev)
			added++
		}
		if added == 0 && loaded {
			return old, xsync.CancelOp
		}

		sort.SliceStable(next.events, func(i, j int) bool {
			if next.events[i].ExecutedAt != next.events[j].ExecutedAt {
				return next.events[i].ExecutedAt < next.events[j].ExecutedAt
			}
			return next.events[i].ID < next.events[j].ID
		})
		return next, xsync.UpdateOp
	})
	return added
}

// Events returns a project's events ordered by execution time
func (s *EventStore) Events(project string) []types.CallEvent {
	pe, ok := s.projects.Load(project)
	if !ok {
		return nil
	}
	return append([]types.CallEvent(nil), pe.events...)
}

// Len returns the number of events stored for a project
func (s *EventStore) Len(project string) int {
	pe, ok := s.projects.Load(project)
	if !ok {
		return 0
	}
	return len(pe.events)
}

// Projects returns the projects holding events, sorted
func (s *EventStore) Projects() []string {
	var out []string
	s.projects.Range(func(project string, _ *projectEvents) bool {
		out = append(out, project)
		return true
	})
	sort.Strings(out)
	return out
}

// Prune drops events executed before cutoff (epoch ms) and returns how many
// were removed
func (s *EventStore) Prune(cutoff int64) int {
	removed := 0
	for _, project := range s.Projects() {
		s.projects.Compute(project, func(old *projectEvents, loaded bool) (*projectEvents, xsync.ComputeOp) {
			if !loaded {
				return old, xsync.CancelOp
			}
			first := sort.Search(len(old.events), func(i int) bool { return old.events[i].ExecutedAt >= cutoff })
			if first == 0 {
				return old, xsync.CancelOp
			}
			removed += first
			if first == len(old.events) {
				return nil, xsync.DeleteOp
			}

			next := &projectEvents{
				ids:    make(map[string]struct{}, len(old.events)-first),
				events: append([]types.CallEvent(nil), old.events[first:]...),
			}
			for _, ev := range next.events {
				next.ids[eventID(ev)] = struct{}{}
			}
			return next, xsync.UpdateOp
		})
	}
	return removed
}

// Clear drops every stored event
func (s *EventStore) Clear() {
	s.projects.Clear()
}

func eventID(ev types.CallEvent) string {
	if ev.ID != "" {
		return ev.ID
	}
	return string(ev.Caller) + "/" + ev.Entrypoint + "/" + strconv.FormatInt(ev.ExecutedAt, 10)
}
