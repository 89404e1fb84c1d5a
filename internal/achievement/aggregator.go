package achievement

import (
	"sort"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

type progressKey struct {
	player      types.AddressKey
	achievement string
	task        string
}

type groupKey struct {
	player      types.AddressKey
	achievement string
}

// Aggregator accumulates task progress across projects and derives
// completion, earnings and ranks from it. It is not safe for concurrent use;
// one consumer goroutine owns it.
type Aggregator struct {
	catalog  *Catalog
	progress map[string]map[progressKey]types.TaskProgress
}

// MergeResult summarizes what one Merge call changed
type MergeResult struct {
	Project  string
	Accepted int // rows that created a new task entry
	Upgraded int // rows that raised an existing entry
	Ignored  int // duplicates, stale rows and rows missing keys
}

// Result is the derived state of one Compute call
type Result struct {
	States      map[string][]types.PlayerAchievementState
	Players     map[string][]types.PlayerStats
	Globals     []types.PlayerStats
	Completions []types.CompletionEvent
}

// NewAggregator creates an aggregator reading definitions from catalog
func NewAggregator(catalog *Catalog) *Aggregator {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Aggregator{
		catalog:  catalog,
		progress: make(map[string]map[progressKey]types.TaskProgress),
	}
}

// Catalog returns the catalog used for completion checks
func (a *Aggregator) Catalog() *Catalog {
	return a.catalog
}

// Merge folds rows of one project into the running aggregate. For a task seen
// more than once the highest count wins, so replays and out-of-order
// deliveries never lower progress.
func (a *Aggregator) Merge(project string, rows []types.TaskProgress) MergeResult {
	result := MergeResult{Project: project}

	tasks, ok := a.progress[project]
	if !ok {
		tasks = make(map[progressKey]types.TaskProgress)
		a.progress[project] = tasks
	}

	for _, row := range rows {
		if row.Player == "" || row.AchievementID == "" || row.TaskID == "" {
			result.Ignored++
			continue
		}
		row.Project = project

		key := progressKey{player: row.Player, achievement: row.AchievementID, task: row.TaskID}
		current, exists := tasks[key]
		if !exists {
			tasks[key] = row
			result.Accepted++
			continue
		}

		merged := mergeTask(current, row)
		if merged == current {
			result.Ignored++
			continue
		}
		tasks[key] = merged
		result.Upgraded++
	}

	return result
}

// mergeTask combines two observations of the same task. It is commutative,
// associative and idempotent.
func mergeTask(a, b types.TaskProgress) types.TaskProgress {
	out := a
	switch {
	case b.TaskCount > a.TaskCount:
		out.TaskCount = b.TaskCount
		out.CompletedAt = b.CompletedAt
	case b.TaskCount == a.TaskCount:
		out.CompletedAt = earliest(a.CompletedAt, b.CompletedAt)
	}
	if b.TaskTotal > out.TaskTotal {
		out.TaskTotal = b.TaskTotal
	}
	if b.Points > out.Points {
		out.Points = b.Points
	}
	return out
}

// earliest returns the smaller non-zero timestamp
func earliest(a, b int64) int64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case b < a:
		return b
	default:
		return a
	}
}

// Progress returns the retained observation of one task
func (a *Aggregator) Progress(project string, player types.AddressKey, achievementID, taskID string) (types.TaskProgress, bool) {
	row, ok := a.progress[project][progressKey{player: player, achievement: achievementID, task: taskID}]
	return row, ok
}

// Projects returns every project with progress or definitions, sorted
func (a *Aggregator) Projects() []string {
	seen := make(map[string]struct{})
	for p := range a.progress {
		seen[p] = struct{}{}
	}
	for _, p := range a.catalog.Projects() {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reset drops all accumulated progress; the catalog is kept
func (a *Aggregator) Reset() {
	a.progress = make(map[string]map[progressKey]types.TaskProgress)
}

// Compute derives states, per-project stats and the global leaderboard from
// everything merged so far. The same input always yields the same output.
func (a *Aggregator) Compute() *Result {
	result := &Result{
		States:  make(map[string][]types.PlayerAchievementState),
		Players: make(map[string][]types.PlayerStats),
	}

	globals := make(map[types.AddressKey]*types.PlayerStats)
	totalAchievements := a.catalog.TotalCount()

	for _, project := range a.Projects() {
		states := a.projectStates(project)
		result.States[project] = states

		perPlayer := make(map[types.AddressKey]*types.PlayerStats)
		for _, st := range states {
			ps, ok := perPlayer[st.Player]
			if !ok {
				ps = &types.PlayerStats{
					Project:               project,
					Player:                st.Player,
					TotalAchievementCount: a.catalog.Count(project),
				}
				perPlayer[st.Player] = ps
			}
			if !st.Completed {
				continue
			}
			ps.CompletedCount++
			ps.Earnings += st.Points
			if st.CompletedAt > 0 {
				result.Completions = append(result.Completions, types.CompletionEvent{
					Project:       project,
					Player:        st.Player,
					AchievementID: st.AchievementID,
					At:            st.CompletedAt,
				})
			}
		}

		stats := make([]types.PlayerStats, 0, len(perPlayer))
		for _, ps := range perPlayer {
			stats = append(stats, *ps)

			g, ok := globals[ps.Player]
			if !ok {
				g = &types.PlayerStats{Player: ps.Player, TotalAchievementCount: totalAchievements}
				globals[ps.Player] = g
			}
			g.CompletedCount += ps.CompletedCount
			g.Earnings += ps.Earnings
		}
		result.Players[project] = Rank(stats)
	}

	globalStats := make([]types.PlayerStats, 0, len(globals))
	for _, g := range globals {
		globalStats = append(globalStats, *g)
	}
	result.Globals = Rank(globalStats)

	sort.Slice(result.Completions, func(i, j int) bool {
		ci, cj := result.Completions[i], result.Completions[j]
		if ci.At != cj.At {
			return ci.At < cj.At
		}
		if ci.Project != cj.Project {
			return ci.Project < cj.Project
		}
		if ci.Player != cj.Player {
			return ci.Player < cj.Player
		}
		return ci.AchievementID < cj.AchievementID
	})

	return result
}

// projectStates builds one state per (player, achievement) seen in progress
func (a *Aggregator) projectStates(project string) []types.PlayerAchievementState {
	groups := make(map[groupKey][]types.TaskProgress)
	for key, row := range a.progress[project] {
		gk := groupKey{player: key.player, achievement: key.achievement}
		groups[gk] = append(groups[gk], row)
	}

	states := make([]types.PlayerAchievementState, 0, len(groups))
	for gk, rows := range groups {
		sort.Slice(rows, func(i, j int) bool { return rows[i].TaskID < rows[j].TaskID })
		def, known := a.catalog.Lookup(project, gk.achievement)
		states = append(states, evaluate(project, gk.player, gk.achievement, rows, def, known))
	}

	sort.Slice(states, func(i, j int) bool {
		if states[i].Player != states[j].Player {
			return states[i].Player < states[j].Player
		}
		return states[i].AchievementID < states[j].AchievementID
	})
	return states
}

// evaluate decides completion of one achievement for one player. An
// achievement unknown to the catalog, or defined without tasks, is never
// complete: a partial task subset must not be mistaken for completion.
func evaluate(project string, player types.AddressKey, achievementID string, rows []types.TaskProgress, def types.Achievement, known bool) types.PlayerAchievementState {
	state := types.PlayerAchievementState{
		Project:       project,
		Player:        player,
		AchievementID: achievementID,
		Tasks:         rows,
	}

	byTask := make(map[string]types.TaskProgress, len(rows))
	var points uint64
	for _, r := range rows {
		byTask[r.TaskID] = r
		if r.Points > points {
			points = r.Points
		}
	}

	if !known || len(def.Tasks) == 0 {
		for _, r := range rows {
			state.Count += minUint(r.TaskCount, r.TaskTotal)
			state.Total += r.TaskTotal
		}
		return state
	}

	completed := true
	var completedAt int64
	for _, task := range def.Tasks {
		total := task.Total
		row, seen := byTask[task.ID]
		if total == 0 {
			total = row.TaskTotal
		}
		state.Total += total
		// a task without any known total cannot be judged complete
		if !seen || total == 0 {
			completed = false
			continue
		}
		state.Count += minUint(row.TaskCount, total)
		if row.TaskCount < total {
			completed = false
		}
		if row.CompletedAt > completedAt {
			completedAt = row.CompletedAt
		}
	}

	if !completed {
		return state
	}

	if points == 0 {
		points = def.Points
	}
	state.Completed = true
	state.CompletedAt = completedAt
	state.Points = points
	return state
}

func minUint(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
