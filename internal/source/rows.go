// Package source fetches raw achievement and activity rows from per-project
// indexers and turns them into normalized records.
package source

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Value is a scalar as delivered by an indexer: JSON strings, numbers,
// booleans and null all decode into their textual form ("" for null).
type Value string

// UnmarshalJSON accepts any JSON scalar
func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*v = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Value(strings.TrimSpace(s))
	default:
		*v = Value(b)
	}
	return nil
}

// String returns the textual form
func (v Value) String() string {
	return string(v)
}

// Bool interprets 1/0, true/false and hex flags
func (v Value) Bool() bool {
	switch strings.ToLower(string(v)) {
	case "", "0", "0x0", "false":
		return false
	default:
		return true
	}
}

// AchievementRow is one task progress row
type AchievementRow struct {
	PlayerID       Value `json:"playerId"`
	AchievementID  Value `json:"achievementId"`
	Points         Value `json:"points"`
	TaskID         Value `json:"taskId"`
	TaskTotal      Value `json:"taskTotal"`
	Total          Value `json:"total"` // the player's count for the task
	CompletionTime Value `json:"completionTime"`
}

// DefinitionRow is one achievement catalog row. Tasks holds a JSON array,
// possibly encoded as a string.
type DefinitionRow struct {
	ID          Value           `json:"id"`
	Hidden      Value           `json:"hidden"`
	Index       Value           `json:"index"`
	Points      Value           `json:"points"`
	Group       Value           `json:"group"`
	Icon        Value           `json:"icon"`
	Title       Value           `json:"title"`
	Description Value           `json:"description"`
	Page        Value           `json:"page"`
	Tasks       json.RawMessage `json:"tasks"`
}

// TaskRow is one element of DefinitionRow.Tasks
type TaskRow struct {
	ID          Value `json:"id"`
	Total       Value `json:"total"`
	Description Value `json:"description"`
}

// ActivityRow is either one call event or, for pre-aggregated queries, one
// session summary with a CSV list of entrypoints
type ActivityRow struct {
	ID              Value `json:"id"`
	CallerAddress   Value `json:"callerAddress"`
	ContractAddress Value `json:"contractAddress"`
	Entrypoint      Value `json:"entrypoint"`
	ExecutedAt      Value `json:"executedAt"`
	TransactionHash Value `json:"transactionHash"`

	Entrypoints  Value `json:"entrypoints"`
	SessionStart Value `json:"sessionStart"`
	SessionEnd   Value `json:"sessionEnd"`
	ActionCount  Value `json:"actionCount"`
}

// IsSummary reports whether the row is a pre-aggregated session
func (r ActivityRow) IsSummary() bool {
	return r.SessionStart != "" || r.Entrypoints != ""
}
