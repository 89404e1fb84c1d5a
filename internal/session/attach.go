package session

import (
	"sort"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// Definitions resolves achievement ids to their catalog entries
type Definitions interface {
	Lookup(project, id string) (types.Achievement, bool)
}

type playerKey struct {
	project string
	player  types.AddressKey
}

// Attach returns a copy of sessions where each session lists the achievements
// its player completed inside [Start, End], both ends inclusive. Achievements
// missing from defs are attached with only their project and id set.
func Attach(sessions []types.Session, completions []types.CompletionEvent, defs Definitions) []types.Session {
	byPlayer := make(map[playerKey][]types.CompletionEvent)
	for _, c := range completions {
		k := playerKey{project: c.Project, player: c.Player}
		byPlayer[k] = append(byPlayer[k], c)
	}
	for _, list := range byPlayer {
		sort.Slice(list, func(i, j int) bool {
			if list[i].At != list[j].At {
				return list[i].At < list[j].At
			}
			return list[i].AchievementID < list[j].AchievementID
		})
	}

	out := make([]types.Session, len(sessions))
	for i, s := range sessions {
		s = cloneSession(s)
		s.Achievements = nil

		list := byPlayer[playerKey{project: s.Project, player: s.Player}]
		first := sort.Search(len(list), func(n int) bool { return list[n].At >= s.Start })
		for _, c := range list[first:] {
			if c.At > s.End {
				break
			}
			s.Achievements = append(s.Achievements, resolve(defs, c))
		}
		out[i] = s
	}
	return out
}

func resolve(defs Definitions, c types.CompletionEvent) types.Achievement {
	if defs != nil {
		if a, ok := defs.Lookup(c.Project, c.AchievementID); ok {
			return a
		}
	}
	return types.Achievement{Project: c.Project, ID: c.AchievementID}
}
