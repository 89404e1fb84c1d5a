package source

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/cartridge-gg/arcade-sub001/internal/normalize"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// DecodeProgress normalizes one page of progress rows. Rows that cannot be
// normalized are dropped and counted; they never fail the page.
func DecodeProgress(project string, p Payload) ([]types.TaskProgress, int) {
	out := make([]types.TaskProgress, 0, len(p.Rows))
	dropped := 0

	for _, raw := range p.Rows {
		var row AchievementRow
		if err := json.Unmarshal(raw, &row); err != nil {
			dropped++
			continue
		}
		progress, ok := progressFromRow(project, row)
		if !ok {
			dropped++
			continue
		}
		out = append(out, progress)
	}
	return out, dropped
}

func progressFromRow(project string, row AchievementRow) (types.TaskProgress, bool) {
	player, err := normalize.Address(row.PlayerID.String())
	if err != nil {
		return types.TaskProgress{}, false
	}
	achievementID := text(row.AchievementID)
	taskID := text(row.TaskID)
	if achievementID == "" || taskID == "" {
		return types.TaskProgress{}, false
	}

	points, err := uintOrZero(row.Points)
	if err != nil {
		return types.TaskProgress{}, false
	}
	taskTotal, err := uintOrZero(row.TaskTotal)
	if err != nil {
		return types.TaskProgress{}, false
	}
	count, err := uintOrZero(row.Total)
	if err != nil {
		return types.TaskProgress{}, false
	}
	completedAt, err := normalize.Timestamp(row.CompletionTime.String())
	if err != nil {
		return types.TaskProgress{}, false
	}

	return types.TaskProgress{
		Project:       project,
		AchievementID: achievementID,
		Player:        player,
		Points:        points,
		TaskID:        taskID,
		TaskCount:     count,
		TaskTotal:     taskTotal,
		CompletedAt:   completedAt,
	}, true
}

// DecodeDefinitions normalizes one page of catalog rows
func DecodeDefinitions(project string, p Payload) ([]types.Achievement, int) {
	out := make([]types.Achievement, 0, len(p.Rows))
	dropped := 0

	for _, raw := range p.Rows {
		var row DefinitionRow
		if err := json.Unmarshal(raw, &row); err != nil {
			dropped++
			continue
		}
		def, ok := definitionFromRow(project, row)
		if !ok {
			dropped++
			continue
		}
		out = append(out, def)
	}
	return out, dropped
}

func definitionFromRow(project string, row DefinitionRow) (types.Achievement, bool) {
	id := text(row.ID)
	if id == "" {
		return types.Achievement{}, false
	}
	points, err := uintOrZero(row.Points)
	if err != nil {
		return types.Achievement{}, false
	}
	index, err := uintOrZero(row.Index)
	if err != nil || index > uint64(^uint32(0)) {
		return types.Achievement{}, false
	}
	page, err := uintOrZero(row.Page)
	if err != nil || page > uint64(^uint32(0)) {
		return types.Achievement{}, false
	}
	tasks, ok := decodeTasks(row.Tasks)
	if !ok {
		return types.Achievement{}, false
	}

	return types.Achievement{
		Project:     project,
		ID:          id,
		Hidden:      row.Hidden.Bool(),
		Points:      points,
		Group:       text(row.Group),
		Icon:        text(row.Icon),
		Title:       text(row.Title),
		Description: text(row.Description),
		Page:        uint32(page),
		Index:       uint32(index),
		Tasks:       tasks,
	}, true
}

// decodeTasks reads a task array that may arrive as JSON or as a JSON string
func decodeTasks(raw json.RawMessage) ([]types.Task, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, true
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, false
		}
		if strings.TrimSpace(inner) == "" {
			return nil, true
		}
		raw = json.RawMessage(inner)
	}

	var rows []TaskRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, false
	}

	tasks := make([]types.Task, 0, len(rows))
	for _, r := range rows {
		id := text(r.ID)
		total, err := uintOrZero(r.Total)
		if id == "" || err != nil {
			return nil, false
		}
		tasks = append(tasks, types.Task{ID: id, Total: total, Description: text(r.Description)})
	}
	return tasks, true
}

// DecodeActivity normalizes one page of activity rows into call events and
// pre-aggregated session summaries
func DecodeActivity(p Payload) ([]types.CallEvent, []types.ActivitySummary, int) {
	if p.Kind == PayloadEvents {
		return p.Events, nil, 0
	}

	var (
		events    []types.CallEvent
		summaries []types.ActivitySummary
		dropped   int
	)
	for _, raw := range p.Rows {
		var row ActivityRow
		if err := json.Unmarshal(raw, &row); err != nil {
			dropped++
			continue
		}

		if row.IsSummary() {
			s, ok := summaryFromRow(row)
			if !ok {
				dropped++
				continue
			}
			summaries = append(summaries, s)
			continue
		}

		ev, ok := eventFromRow(row)
		if !ok {
			dropped++
			continue
		}
		events = append(events, ev)
	}
	return events, summaries, dropped
}

func eventFromRow(row ActivityRow) (types.CallEvent, bool) {
	caller, err := normalize.Address(row.CallerAddress.String())
	if err != nil {
		return types.CallEvent{}, false
	}
	var contract types.AddressKey
	if row.ContractAddress != "" {
		if contract, err = normalize.Address(row.ContractAddress.String()); err != nil {
			return types.CallEvent{}, false
		}
	}
	entrypoint := row.Entrypoint.String()
	if entrypoint == "" {
		return types.CallEvent{}, false
	}
	executedAt, err := normalize.Timestamp(row.ExecutedAt.String())
	if err != nil || executedAt == 0 {
		return types.CallEvent{}, false
	}

	id := row.ID.String()
	if id == "" && row.TransactionHash != "" {
		id = row.TransactionHash.String() + ":" + entrypoint
	}

	return types.CallEvent{
		ID:         id,
		Caller:     caller,
		Contract:   contract,
		Entrypoint: entrypoint,
		ExecutedAt: executedAt,
	}, true
}

func summaryFromRow(row ActivityRow) (types.ActivitySummary, bool) {
	caller, err := normalize.Address(row.CallerAddress.String())
	if err != nil {
		return types.ActivitySummary{}, false
	}
	start, err := normalize.Timestamp(row.SessionStart.String())
	if err != nil || start == 0 {
		return types.ActivitySummary{}, false
	}
	end, err := normalize.Timestamp(row.SessionEnd.String())
	if err != nil {
		return types.ActivitySummary{}, false
	}
	count, err := uintOrZero(row.ActionCount)
	if err != nil {
		return types.ActivitySummary{}, false
	}

	var entrypoints []string
	for _, e := range strings.Split(row.Entrypoints.String(), ",") {
		if e = strings.TrimSpace(e); e != "" {
			entrypoints = append(entrypoints, e)
		}
	}

	return types.ActivitySummary{
		Caller:       caller,
		Entrypoints:  entrypoints,
		SessionStart: start,
		SessionEnd:   end,
		ActionCount:  int(count), // #nosec G115 - action counts are small
	}, true
}

// text decodes hex short strings holding printable text; anything else is
// returned as delivered
func text(v Value) string {
	s := v.String()
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return s
	}
	decoded := normalize.DecodeShortString(s)
	if decoded == "" || !printable(decoded) {
		return s
	}
	return decoded
}

func printable(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

func uintOrZero(v Value) (uint64, error) {
	if v == "" {
		return 0, nil
	}
	return normalize.Uint64(v.String())
}
