package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/logging"
	"github.com/cartridge-gg/arcade-sub001/internal/normalize"
	"github.com/cartridge-gg/arcade-sub001/internal/storage"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Page describes the slice of a list returned by a handler
type Page struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// parsePage reads limit and offset; invalid values fall back to defaults
func parsePage(r *http.Request) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// paginate returns the bounds of the requested page within n items
func paginate(n, limit, offset int) (int, int, Page) {
	start := offset
	if start > n {
		start = n
	}
	end := start + limit
	if end > n {
		end = n
	}
	return start, end, Page{Total: n, Limit: limit, Offset: offset, HasMore: end < n}
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.arcade.Status())
}

// handleProjects handles GET /api/projects
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	view := s.arcade.View()
	projects := make([]string, 0, len(view.Sources)+len(view.Achievements))
	seen := make(map[string]struct{})
	for p := range view.Sources {
		seen[p] = struct{}{}
	}
	for p := range view.Achievements {
		seen[p] = struct{}{}
	}
	for p := range seen {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"projects":  projects,
		"status":    view.Status,
		"updatedAt": view.UpdatedAt,
	})
}

// handleAchievements handles GET /api/projects/{project}/achievements
func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]
	view := s.arcade.View()
	if !view.HasProject(project) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Project not found", map[string]interface{}{"project": project})
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project":      project,
		"achievements": view.ProjectAchievements(project),
	})
}

// handleProjectPlayers handles GET /api/projects/{project}/players
func (s *Server) handleProjectPlayers(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]
	view := s.arcade.View()
	if !view.HasProject(project) {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "Project not found", map[string]interface{}{"project": project})
		return
	}

	players := view.Leaderboard(project)
	limit, offset := parsePage(r)
	start, end, page := paginate(len(players), limit, offset)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project":    project,
		"players":    players[start:end],
		"pagination": page,
	})
}

// handleProjectPlayer handles GET /api/projects/{project}/players/{address}
func (s *Server) handleProjectPlayer(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	project := vars["project"]

	player, err := normalize.Address(vars["address"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	view := s.arcade.View()
	states := view.PlayerStates(project, player)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project":      project,
		"player":       player,
		"achievements": states,
	})
}

// handleLeaderboard handles GET /api/leaderboard
func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	view := s.arcade.View()
	players := view.Leaderboard("")
	limit, offset := parsePage(r)
	start, end, page := paginate(len(players), limit, offset)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"players":    players[start:end],
		"pagination": page,
		"status":     view.Status,
	})
}

// handleDiscovers handles GET /api/projects/{project}/discovers[?player=]
func (s *Server) handleDiscovers(w http.ResponseWriter, r *http.Request) {
	project := mux.Vars(r)["project"]

	var player types.AddressKey
	if raw := r.URL.Query().Get("player"); raw != "" {
		p, err := normalize.Address(raw)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		player = p
	}

	sessions := s.arcade.View().Sessions(project, player)
	if sessions == nil {
		sessions = []types.Session{}
	}
	limit, offset := parsePage(r)
	start, end, page := paginate(len(sessions), limit, offset)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project":    project,
		"discovers":  sessions[start:end],
		"pagination": page,
	})
}

// handlePlayer handles GET /api/players/{address}
func (s *Server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	summary, err := s.arcade.Player(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Debug("Player lookup failed")
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// handlePins handles GET /api/players/{address}/pins/{project}
func (s *Server) handlePins(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	pinned, err := s.arcade.Pins(r.Context(), vars["address"], vars["project"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project": vars["project"],
		"pinned":  pinned,
	})
}

// handleSetPins handles PUT /api/players/{address}/pins/{project}
func (s *Server) handleSetPins(w http.ResponseWriter, r *http.Request) {
	if s.pins == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Pin storage is not configured", nil)
		return
	}

	vars := mux.Vars(r)
	player, err := normalize.Address(vars["address"])
	if err != nil {
		respondServiceError(w, err)
		return
	}

	var req struct {
		AchievementIDs []string `json:"achievementIds"`
	}
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	pin := types.Pin{Project: vars["project"], Player: player, AchievementIDs: req.AchievementIDs}
	if err := storage.ValidatePin(pin); err != nil {
		respondServiceError(w, err)
		return
	}
	if err := s.pins.Upsert(r.Context(), pin); err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("Failed to store pins")
		respondServiceError(w, errors.Categorize(err))
		return
	}

	pinned, err := s.arcade.Pins(r.Context(), player.Hex(), pin.Project)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"project": pin.Project,
		"pinned":  pinned,
	})
}
