package storage

import (
	"context"
	"fmt"

	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// PinRepository stores the achievements each player pinned per project
type PinRepository struct {
	db *PostgresDB
}

// NewPinRepository creates a new pin repository
func NewPinRepository(db *PostgresDB) *PinRepository {
	return &PinRepository{db: db}
}

// ValidatePin checks a pin before it is written
func ValidatePin(pin types.Pin) error {
	if pin.Project == "" {
		return errors.NewInvalidParameterError("project", "must not be empty")
	}
	if len(pin.Player) != 64 {
		return errors.NewInvalidParameterError("player", "must be a normalized address")
	}
	if len(pin.AchievementIDs) > types.MaxPins {
		return errors.NewInvalidParameterError("achievementIds",
			fmt.Sprintf("at most %d achievements can be pinned", types.MaxPins))
	}
	seen := make(map[string]bool, len(pin.AchievementIDs))
	for _, id := range pin.AchievementIDs {
		if id == "" {
			return errors.NewInvalidParameterError("achievementIds", "empty id")
		}
		if seen[id] {
			return errors.NewInvalidParameterError("achievementIds", fmt.Sprintf("duplicate id %q", id))
		}
		seen[id] = true
	}
	return nil
}

// Upsert replaces the pins of (project, player)
func (r *PinRepository) Upsert(ctx context.Context, pin types.Pin) error {
	if err := ValidatePin(pin); err != nil {
		return err
	}

	ids := pin.AchievementIDs
	if ids == nil {
		ids = []string{}
	}

	query := `
		INSERT INTO pins (project, player, achievement_ids)
		VALUES ($1, $2, $3)
		ON CONFLICT (project, player) DO UPDATE SET
			achievement_ids = EXCLUDED.achievement_ids,
			updated_at = NOW()
	`
	if _, err := r.db.Pool().Exec(ctx, query, pin.Project, string(pin.Player), ids); err != nil {
		return errors.NewDatabaseError("upsert pin", err)
	}
	return nil
}

// GetByProject returns every pin record of a project, ordered by player
func (r *PinRepository) GetByProject(ctx context.Context, project string) ([]types.Pin, error) {
	query := `SELECT project, player, achievement_ids FROM pins WHERE project = $1 ORDER BY player`
	return r.query(ctx, "get pins by project", query, project)
}

// GetByPlayer returns the pin records of a player across projects
func (r *PinRepository) GetByPlayer(ctx context.Context, player types.AddressKey) ([]types.Pin, error) {
	query := `SELECT project, player, achievement_ids FROM pins WHERE player = $1 ORDER BY project`
	return r.query(ctx, "get pins by player", query, string(player))
}

// Delete removes the pins of (project, player)
func (r *PinRepository) Delete(ctx context.Context, project string, player types.AddressKey) error {
	_, err := r.db.Pool().Exec(ctx, `DELETE FROM pins WHERE project = $1 AND player = $2`, project, string(player))
	if err != nil {
		return errors.NewDatabaseError("delete pin", err)
	}
	return nil
}

func (r *PinRepository) query(ctx context.Context, operation, query string, arg string) ([]types.Pin, error) {
	rows, err := r.db.Pool().Query(ctx, query, arg)
	if err != nil {
		return nil, errors.NewDatabaseError(operation, err)
	}
	defer rows.Close()

	var pins []types.Pin
	for rows.Next() {
		var (
			pin    types.Pin
			player string
		)
		if err := rows.Scan(&pin.Project, &player, &pin.AchievementIDs); err != nil {
			return nil, errors.NewDatabaseError(operation, err)
		}
		pin.Player = types.AddressKey(player)
		pins = append(pins, pin)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError(operation, err)
	}
	return pins, nil
}
