package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// ActivityRepository archives call events in ClickHouse and serves them back
// as an alternative activity source
type ActivityRepository struct {
	db *ClickHouseDB
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *ClickHouseDB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// BatchInsert stores call events of one project. Events are keyed by
// (project, id); the table's ReplacingMergeTree collapses re-inserts.
func (r *ActivityRepository) BatchInsert(ctx context.Context, project string, events []types.CallEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO call_events (project, id, caller, contract, entrypoint, executed_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, ev := range events {
		err := batch.Append(
			project,
			ev.ID,
			string(ev.Caller),
			string(ev.Contract),
			ev.Entrypoint,
			time.UnixMilli(ev.ExecutedAt).UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s to batch: %w", ev.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// ListByProject returns one page of a project's events executed at or after
// since (epoch ms), ordered by (executed_at, id)
func (r *ActivityRepository) ListByProject(ctx context.Context, project string, since int64, limit, offset int) ([]types.CallEvent, error) {
	query := `
		SELECT id, caller, contract, entrypoint, executed_at
		FROM call_events FINAL
		WHERE project = ? AND executed_at >= ?
		ORDER BY executed_at, id
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.Conn().Query(ctx, query, project, time.UnixMilli(since).UTC(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query call events: %w", err)
	}
	defer rows.Close()

	events := make([]types.CallEvent, 0, limit)
	for rows.Next() {
		var (
			ev         types.CallEvent
			caller     string
			contract   string
			executedAt time.Time
		)
		if err := rows.Scan(&ev.ID, &caller, &contract, &ev.Entrypoint, &executedAt); err != nil {
			return nil, fmt.Errorf("failed to scan call event: %w", err)
		}
		ev.Caller = types.AddressKey(caller)
		ev.Contract = types.AddressKey(contract)
		ev.ExecutedAt = executedAt.UnixMilli()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate call events: %w", err)
	}
	return events, nil
}

// CountByProject returns how many events are archived for a project
func (r *ActivityRepository) CountByProject(ctx context.Context, project string) (uint64, error) {
	var count uint64
	row := r.db.Conn().QueryRow(ctx, `SELECT count() FROM call_events FINAL WHERE project = ?`, project)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count call events: %w", err)
	}
	return count, nil
}

// DeleteBefore drops events executed before cutoff (epoch ms)
func (r *ActivityRepository) DeleteBefore(ctx context.Context, cutoff int64) error {
	return r.db.Exec(ctx, `ALTER TABLE call_events DELETE WHERE executed_at < ?`, time.UnixMilli(cutoff).UTC())
}
