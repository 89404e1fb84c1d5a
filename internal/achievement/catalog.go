// Package achievement derives per-player achievement completion, earnings and
// leaderboards from raw task progress rows.
package achievement

import (
	"sort"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// Catalog holds the achievement definitions of every project
type Catalog struct {
	projects map[string]map[string]types.Achievement
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{projects: make(map[string]map[string]types.Achievement)}
}

// Put replaces the whole catalog of a project
func (c *Catalog) Put(project string, achievements []types.Achievement) {
	entries := make(map[string]types.Achievement, len(achievements))
	for _, a := range achievements {
		a.Project = project
		entries[a.ID] = a
	}
	c.projects[project] = entries
}

// Lookup returns one achievement definition
func (c *Catalog) Lookup(project, id string) (types.Achievement, bool) {
	a, ok := c.projects[project][id]
	return a, ok
}

// Achievements returns a project's definitions ordered by page, index and id
func (c *Catalog) Achievements(project string) []types.Achievement {
	entries := c.projects[project]
	out := make([]types.Achievement, 0, len(entries))
	for _, a := range entries {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Page != out[j].Page {
			return out[i].Page < out[j].Page
		}
		if out[i].Index != out[j].Index {
			return out[i].Index < out[j].Index
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Count returns the number of achievements defined for a project
func (c *Catalog) Count(project string) int {
	return len(c.projects[project])
}

// TotalCount returns the number of achievements across all projects
func (c *Catalog) TotalCount() int {
	total := 0
	for _, entries := range c.projects {
		total += len(entries)
	}
	return total
}

// Projects returns the projects with definitions, sorted
func (c *Catalog) Projects() []string {
	out := make([]string, 0, len(c.projects))
	for p := range c.projects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy that later Put or Upsert calls do not affect
func (c *Catalog) Clone() *Catalog {
	out := &Catalog{projects: make(map[string]map[string]types.Achievement, len(c.projects))}
	for project, entries := range c.projects {
		copied := make(map[string]types.Achievement, len(entries))
		for id, a := range entries {
			a.Tasks = append([]types.Task(nil), a.Tasks...)
			copied[id] = a
		}
		out.projects[project] = copied
	}
	return out
}

// Reset drops every definition
func (c *Catalog) Reset() {
	c.projects = make(map[string]map[string]types.Achievement)
}
