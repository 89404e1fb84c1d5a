package service

import (
	"sort"

	"github.com/cartridge-gg/arcade-sub001/internal/achievement"
	"github.com/cartridge-gg/arcade-sub001/internal/ranking"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// View is the state published by one completed pass. A published view is
// never mutated; readers may share it freely.
type View struct {
	PassID       string                         `json:"passId"`
	Status       types.Status                   `json:"status"`
	Progress     types.LoadingProgress          `json:"progress"`
	Achievements map[string][]types.Achievement `json:"achievements"`
	Players      map[string][]types.PlayerStats `json:"players"`
	Globals      []types.PlayerStats            `json:"globals"`
	Discovers    map[string][]types.Session     `json:"discovers"`
	Sources      map[string]types.SourceStatus  `json:"sources"`
	Dropped      int                            `json:"dropped"`
	UpdatedAt    int64                          `json:"updatedAt"`

	result  *achievement.Result
	catalog *achievement.Catalog
}

func emptyView() *View {
	return &View{
		Status:       types.StatusIdle,
		Achievements: map[string][]types.Achievement{},
		Players:      map[string][]types.PlayerStats{},
		Globals:      []types.PlayerStats{},
		Discovers:    map[string][]types.Session{},
		Sources:      map[string]types.SourceStatus{},
		result: &achievement.Result{
			States:  map[string][]types.PlayerAchievementState{},
			Players: map[string][]types.PlayerStats{},
		},
		catalog: achievement.NewCatalog(),
	}
}

// AchievementView is a catalog entry with the share of players who completed it
type AchievementView struct {
	types.Achievement
	Rarity ranking.AchievementRarity `json:"rarity"`
}

// ProjectAchievements returns a project's catalog in display order
func (v *View) ProjectAchievements(project string) []AchievementView {
	rarity := ranking.Rarity(project, v.catalog, v.result)
	defs := v.Achievements[project]
	out := make([]AchievementView, 0, len(defs))
	for _, a := range defs {
		out = append(out, AchievementView{Achievement: a, Rarity: rarity[a.ID]})
	}
	return out
}

// HasProject reports whether the view knows anything about project
func (v *View) HasProject(project string) bool {
	if _, ok := v.Sources[project]; ok {
		return true
	}
	_, ok := v.Achievements[project]
	return ok
}

// Leaderboard returns a project's ranked players, or the global leaderboard
// when project is empty
func (v *View) Leaderboard(project string) []types.PlayerStats {
	if project == "" {
		return v.Globals
	}
	return v.Players[project]
}

// StateView is one player's achievement state with its completion percentage
type StateView struct {
	types.PlayerAchievementState
	Percentage string `json:"percentage"`
}

// PlayerStates returns the achievement states of one player in a project
func (v *View) PlayerStates(project string, player types.AddressKey) []StateView {
	out := []StateView{}
	for _, st := range v.result.States[project] {
		if st.Player == player {
			out = append(out, StateView{PlayerAchievementState: st, Percentage: ranking.Progress(st)})
		}
	}
	return out
}

// Sessions returns a project's sessions, most recent first, optionally
// restricted to one player
func (v *View) Sessions(project string, player types.AddressKey) []types.Session {
	all := v.Discovers[project]
	if player == "" {
		return all
	}
	var out []types.Session
	for _, s := range all {
		if s.Player == player {
			out = append(out, s)
		}
	}
	return out
}

// PlayerSummary returns the standing of one address
func (v *View) PlayerSummary(player types.AddressKey) ranking.PlayerSummary {
	return ranking.PlayerView(player, v.result)
}

// Pinned returns the showcase of player in project
func (v *View) Pinned(player types.AddressKey, project string, pins []types.Pin) []ranking.PinnedAchievement {
	return ranking.Pinned(player, project, pins, v.catalog, v.result)
}

// SourceList returns the per-project statuses ordered by project
func (v *View) SourceList() []types.SourceStatus {
	out := make([]types.SourceStatus, 0, len(v.Sources))
	for _, s := range v.Sources {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project < out[j].Project })
	return out
}
