// Package types provides common type definitions for the arcade aggregation engine.
package types

import "strings"

// AddressKey is a normalized account address: 64 lowercase hex characters,
// zero-left-padded, without the 0x prefix. Build one with normalize.Address.
type AddressKey string

// Hex returns the address with a 0x prefix
func (a AddressKey) Hex() string {
	return "0x" + string(a)
}

// Short returns the address without leading zeros, 0x-prefixed
func (a AddressKey) Short() string {
	trimmed := strings.TrimLeft(string(a), "0")
	if trimmed == "" {
		trimmed = "0"
	}
	return "0x" + trimmed
}

// Status represents the state of the view produced by a poll pass
type Status string

const (
	// StatusIdle means no pass has run yet
	StatusIdle Status = "idle"
	// StatusLoading means a pass is draining its sources
	StatusLoading Status = "loading"
	// StatusSuccess means every source of the last pass succeeded
	StatusSuccess Status = "success"
	// StatusError means at least one source of the last pass failed
	StatusError Status = "error"
)

// SourceKind identifies which dataset a source request targets
type SourceKind string

const (
	// KindDefinitions are achievement catalog rows
	KindDefinitions SourceKind = "definitions"
	// KindProgress are per-task achievement progress rows
	KindProgress SourceKind = "progress"
	// KindActivity are on-chain call events
	KindActivity SourceKind = "activity"
)

// Task is one measurable sub-goal of an achievement
type Task struct {
	ID          string `json:"id"`
	Total       uint64 `json:"total"`
	Description string `json:"description"`
}

// Achievement is a catalog entry of a project
type Achievement struct {
	Project     string `json:"project"`
	ID          string `json:"id"`
	Hidden      bool   `json:"hidden"`
	Points      uint64 `json:"points"`
	Group       string `json:"group"`
	Icon        string `json:"icon"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Page        uint32 `json:"page"`
	Index       uint32 `json:"index"`
	Tasks       []Task `json:"tasks"`
}

// TaskProgress is one normalized progress row for a single task
type TaskProgress struct {
	Project       string     `json:"project"`
	AchievementID string     `json:"achievementId"`
	Player        AddressKey `json:"player"`
	Points        uint64     `json:"points"`
	TaskID        string     `json:"taskId"`
	TaskCount     uint64     `json:"taskCount"`
	TaskTotal     uint64     `json:"taskTotal"`
	CompletedAt   int64      `json:"completedAt"` // epoch ms, 0 when not completed
}

// PlayerAchievementState is the derived state of one achievement for one player
type PlayerAchievementState struct {
	Project       string         `json:"project"`
	Player        AddressKey     `json:"player"`
	AchievementID string         `json:"achievementId"`
	Tasks         []TaskProgress `json:"tasks"`
	Count         uint64         `json:"count"`
	Total         uint64         `json:"total"`
	Completed     bool           `json:"completed"`
	CompletedAt   int64          `json:"completedAt"`
	Points        uint64         `json:"points"`
}

// PlayerStats is a player's standing within a project, or globally when Project is empty
type PlayerStats struct {
	Project               string     `json:"project,omitempty"`
	Player                AddressKey `json:"player"`
	CompletedCount        int        `json:"completedCount"`
	TotalAchievementCount int        `json:"totalAchievementCount"`
	Earnings              uint64     `json:"earnings"`
	Rank                  int        `json:"rank"`
}

// CompletionEvent marks the moment a player completed an achievement
type CompletionEvent struct {
	Project       string     `json:"project"`
	Player        AddressKey `json:"player"`
	AchievementID string     `json:"achievementId"`
	At            int64      `json:"at"` // epoch ms
}

// CallEvent is one on-chain call made by a player
type CallEvent struct {
	ID         string     `json:"id"`
	Caller     AddressKey `json:"caller"`
	Contract   AddressKey `json:"contract"`
	Entrypoint string     `json:"entrypoint"`
	ExecutedAt int64      `json:"executedAt"` // epoch ms
}

// ActivitySummary is a session already grouped by the data source
type ActivitySummary struct {
	Caller       AddressKey `json:"caller"`
	Entrypoints  []string   `json:"entrypoints"`
	SessionStart int64      `json:"sessionStart"`
	SessionEnd   int64      `json:"sessionEnd"`
	ActionCount  int        `json:"actionCount"`
}

// Session is a contiguous run of one player's calls ("discover")
type Session struct {
	Project      string        `json:"project"`
	Player       AddressKey    `json:"player"`
	Start        int64         `json:"start"`
	End          int64         `json:"end"`
	Actions      []string      `json:"actions"`
	Achievements []Achievement `json:"achievements"`
}

// Duration returns the session length in milliseconds
func (s *Session) Duration() int64 {
	return s.End - s.Start
}

// Pin is a player's chosen showcase of achievements in a project
type Pin struct {
	Project        string     `json:"project"`
	Player         AddressKey `json:"player"`
	AchievementIDs []string   `json:"achievementIds"`
}

// MaxPins is the number of achievements a player can pin per project
const MaxPins = 3

// LoadingProgress reports how many sources of a pass have finished
type LoadingProgress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Status    Status `json:"status,omitempty"` // set only on the last update of a pass
}

// Done reports whether every source has finished
func (p LoadingProgress) Done() bool {
	return p.Completed >= p.Total
}

// Final reports whether this update closes a pass with its outcome
func (p LoadingProgress) Final() bool {
	return p.Status == StatusSuccess || p.Status == StatusError
}

// SourceStatus is the outcome of the last fetch of one project
type SourceStatus struct {
	Project   string `json:"project"`
	Status    Status `json:"status"`
	Error     string `json:"error,omitempty"`
	Rows      int    `json:"rows"`
	Dropped   int    `json:"dropped"`
	UpdatedAt int64  `json:"updatedAt"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
