// Package ranking projects aggregated achievement state into the shapes the
// portal displays: pinned showcases, per-address standings and percentages.
package ranking

import (
	"fmt"
	"sort"

	"github.com/cartridge-gg/arcade-sub001/internal/achievement"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// Percentage formats count/total as a whole-number percentage, "0" when total is 0
func Percentage(count, total uint64) string {
	if total == 0 {
		return "0"
	}
	return fmt.Sprintf("%.0f", 100*float64(count)/float64(total))
}

// Progress is the completion percentage of one player's achievement
func Progress(state types.PlayerAchievementState) string {
	return Percentage(state.Count, state.Total)
}

// AchievementRarity is the share of a project's players who completed an achievement
type AchievementRarity struct {
	AchievementID string  `json:"achievementId"`
	Completed     int     `json:"completed"`
	Players       int     `json:"players"`
	Ratio         float64 `json:"-"`
	Percentage    string  `json:"percentage"`
}

// Rarity computes the completion share of every catalog achievement of a project
func Rarity(project string, catalog *achievement.Catalog, result *achievement.Result) map[string]AchievementRarity {
	players := len(result.Players[project])

	completed := make(map[string]int)
	for _, st := range result.States[project] {
		if st.Completed {
			completed[st.AchievementID]++
		}
	}

	out := make(map[string]AchievementRarity)
	for _, a := range catalog.Achievements(project) {
		out[a.ID] = newRarity(a.ID, completed[a.ID], players)
	}
	for id, n := range completed {
		if _, ok := out[id]; !ok {
			out[id] = newRarity(id, n, players)
		}
	}
	return out
}

func newRarity(id string, completed, players int) AchievementRarity {
	r := AchievementRarity{
		AchievementID: id,
		Completed:     completed,
		Players:       players,
		Percentage:    Percentage(uint64(completed), uint64(players)),
	}
	if players > 0 {
		r.Ratio = float64(completed) / float64(players)
	}
	return r
}

// PinnedAchievement is one entry of a player's showcase
type PinnedAchievement struct {
	Achievement types.Achievement `json:"achievement"`
	CompletedAt int64             `json:"completedAt"`
	Percentage  string            `json:"percentage"`
}

// Pinned returns the showcase of subject in project: the pinned achievements
// the subject has completed, rarest first, at most types.MaxPins. Without a
// pin record the subject's completed achievements are used instead.
func Pinned(subject types.AddressKey, project string, pins []types.Pin, catalog *achievement.Catalog, result *achievement.Result) []PinnedAchievement {
	completed := make(map[string]types.PlayerAchievementState)
	for _, st := range result.States[project] {
		if st.Player == subject && st.Completed {
			completed[st.AchievementID] = st
		}
	}

	var ids []string
	pinned := false
	for _, p := range pins {
		if p.Player == subject && p.Project == project {
			ids = p.AchievementIDs
			pinned = true
			break
		}
	}
	if !pinned {
		for id := range completed {
			ids = append(ids, id)
		}
	}

	rarity := Rarity(project, catalog, result)
	out := make([]PinnedAchievement, 0, len(ids))
	ratios := make(map[string]float64, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		st, ok := completed[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		def, known := catalog.Lookup(project, id)
		if !known {
			def = types.Achievement{Project: project, ID: id}
		}
		r := rarity[id]
		ratios[id] = r.Ratio
		out = append(out, PinnedAchievement{
			Achievement: def,
			CompletedAt: st.CompletedAt,
			Percentage:  r.Percentage,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := ratios[out[i].Achievement.ID], ratios[out[j].Achievement.ID]
		if ri != rj {
			return ri < rj
		}
		return out[i].Achievement.ID < out[j].Achievement.ID
	})

	if len(out) > types.MaxPins {
		out = out[:types.MaxPins]
	}
	return out
}

// PlayerSummary is one address's standing globally and in each project
type PlayerSummary struct {
	Player   types.AddressKey             `json:"player"`
	Global   types.PlayerStats            `json:"global"`
	Projects map[string]types.PlayerStats `json:"projects"`
}

// PlayerView extracts the standing of subject. An address with no progress
// gets zero stats with rank 0.
func PlayerView(subject types.AddressKey, result *achievement.Result) PlayerSummary {
	summary := PlayerSummary{
		Player:   subject,
		Global:   types.PlayerStats{Player: subject},
		Projects: make(map[string]types.PlayerStats),
	}

	if g, ok := achievement.Find(result.Globals, subject); ok {
		summary.Global = g
	}
	for project, stats := range result.Players {
		if s, ok := achievement.Find(stats, subject); ok {
			summary.Projects[project] = s
		}
	}
	return summary
}
