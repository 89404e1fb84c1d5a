package session

import (
	"sort"
	"time"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// DefaultBreakThreshold is the idle gap after which a player's next call
// starts a new session
const DefaultBreakThreshold = time.Hour

// Builder turns a player's call events into sessions. Pages can be fed one at
// a time; as long as each player's events keep chronological order across
// pages, the result equals feeding the whole sequence at once.
type Builder struct {
	project   string
	threshold int64 // ms
	denylist  *Denylist

	open    map[types.AddressKey]*types.Session
	closed  []types.Session
	skipped int
}

// NewBuilder creates a builder for one project. A non-positive threshold
// falls back to DefaultBreakThreshold, a nil denylist to DefaultDenylist.
func NewBuilder(project string, threshold time.Duration, denylist *Denylist) *Builder {
	if threshold <= 0 {
		threshold = DefaultBreakThreshold
	}
	if denylist == nil {
		denylist = DefaultDenylist
	}
	return &Builder{
		project:   project,
		threshold: threshold.Milliseconds(),
		denylist:  denylist,
		open:      make(map[types.AddressKey]*types.Session),
	}
}

// AddPage consumes one page of call events and returns how many were skipped.
// A gap strictly greater than the threshold closes the player's session; a
// gap equal to it extends the session.
func (b *Builder) AddPage(events []types.CallEvent) int {
	skipped := 0
	for _, ev := range events {
		if ev.Caller == "" || b.denylist.Blocks(ev.Entrypoint) {
			skipped++
			continue
		}

		cur, ok := b.open[ev.Caller]
		if ok && ev.ExecutedAt-cur.End > b.threshold {
			b.closed = append(b.closed, *cur)
			ok = false
		}
		if !ok {
			b.open[ev.Caller] = &types.Session{
				Project: b.project,
				Player:  ev.Caller,
				Start:   ev.ExecutedAt,
				End:     ev.ExecutedAt,
				Actions: []string{ev.Entrypoint},
			}
			continue
		}

		if ev.ExecutedAt > cur.End {
			cur.End = ev.ExecutedAt
		}
		if ev.ExecutedAt < cur.Start {
			cur.Start = ev.ExecutedAt
		}
		cur.Actions = append(cur.Actions, ev.Entrypoint)
	}
	b.skipped += skipped
	return skipped
}

// AddSummaries takes sessions already grouped by the data source. Denylisted
// entrypoints are removed; a summary left without actions is skipped.
func (b *Builder) AddSummaries(summaries []types.ActivitySummary) int {
	skipped := 0
	for _, s := range summaries {
		actions := make([]string, 0, len(s.Entrypoints))
		for _, e := range s.Entrypoints {
			if e == "" || b.denylist.Blocks(e) {
				continue
			}
			actions = append(actions, e)
		}
		if s.Caller == "" || len(actions) == 0 {
			skipped++
			continue
		}

		end := s.SessionEnd
		if end < s.SessionStart {
			end = s.SessionStart
		}
		b.closed = append(b.closed, types.Session{
			Project: b.project,
			Player:  s.Caller,
			Start:   s.SessionStart,
			End:     end,
			Actions: actions,
		})
	}
	b.skipped += skipped
	return skipped
}

// Skipped returns the number of events and summaries dropped so far
func (b *Builder) Skipped() int {
	return b.skipped
}

// Sessions returns every session built so far, most recent first. The
// builder keeps its state, so more pages can follow.
func (b *Builder) Sessions() []types.Session {
	out := make([]types.Session, 0, len(b.closed)+len(b.open))
	for _, s := range b.closed {
		out = append(out, cloneSession(s))
	}
	for _, s := range b.open {
		out = append(out, cloneSession(*s))
	}
	SortRecent(out)
	return out
}

// Build groups a complete event sequence in one call
func Build(project string, events []types.CallEvent, threshold time.Duration, denylist *Denylist) []types.Session {
	b := NewBuilder(project, threshold, denylist)
	b.AddPage(events)
	return b.Sessions()
}

// SortRecent orders sessions by end time, most recent first
func SortRecent(sessions []types.Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		si, sj := sessions[i], sessions[j]
		if si.End != sj.End {
			return si.End > sj.End
		}
		if si.Start != sj.Start {
			return si.Start > sj.Start
		}
		if si.Player != sj.Player {
			return si.Player < sj.Player
		}
		return si.Project < sj.Project
	})
}

func cloneSession(s types.Session) types.Session {
	s.Actions = append([]string(nil), s.Actions...)
	if s.Achievements != nil {
		s.Achievements = append([]types.Achievement(nil), s.Achievements...)
	}
	return s
}
