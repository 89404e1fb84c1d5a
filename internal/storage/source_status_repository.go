package storage

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cartridge-gg/arcade-sub001/internal/errors"
	"github.com/cartridge-gg/arcade-sub001/internal/types"
)

// SourceStatusRepository persists the outcome of the last pass per project
type SourceStatusRepository struct {
	db *PostgresDB
}

// NewSourceStatusRepository creates a new source status repository
func NewSourceStatusRepository(db *PostgresDB) *SourceStatusRepository {
	return &SourceStatusRepository{db: db}
}

// Upsert records a project's latest status. last_success_at only moves on success.
func (r *SourceStatusRepository) Upsert(ctx context.Context, status types.SourceStatus) error {
	query := `
		INSERT INTO source_status (project, status, error, rows, dropped, updated_at, last_success_at)
		VALUES ($1, $2, $3, $4, $5, $6, CASE WHEN $2 = 'success' THEN $6 END)
		ON CONFLICT (project) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			rows = EXCLUDED.rows,
			dropped = EXCLUDED.dropped,
			updated_at = EXCLUDED.updated_at,
			last_success_at = COALESCE(EXCLUDED.last_success_at, source_status.last_success_at)
	`

	updatedAt := time.UnixMilli(status.UpdatedAt).UTC()
	_, err := r.db.Pool().Exec(ctx, query,
		status.Project,
		string(status.Status),
		status.Error,
		status.Rows,
		status.Dropped,
		updatedAt,
	)
	if err != nil {
		return errors.NewDatabaseError("upsert source status", err)
	}
	return nil
}

// Get returns the stored status of a project
func (r *SourceStatusRepository) Get(ctx context.Context, project string) (types.SourceStatus, error) {
	query := `
		SELECT project, status, error, rows, dropped, updated_at
		FROM source_status
		WHERE project = $1
	`

	var (
		status    types.SourceStatus
		state     string
		updatedAt time.Time
	)
	err := r.db.Pool().QueryRow(ctx, query, project).Scan(
		&status.Project,
		&state,
		&status.Error,
		&status.Rows,
		&status.Dropped,
		&updatedAt,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return types.SourceStatus{}, errors.NewNotFoundError("source status", project)
		}
		return types.SourceStatus{}, errors.NewDatabaseError("get source status", err)
	}

	status.Status = types.Status(state)
	status.UpdatedAt = updatedAt.UnixMilli()
	return status, nil
}

// List returns every stored status ordered by project
func (r *SourceStatusRepository) List(ctx context.Context) ([]types.SourceStatus, error) {
	rows, err := r.db.Pool().Query(ctx, `
		SELECT project, status, error, rows, dropped, updated_at
		FROM source_status
		ORDER BY project
	`)
	if err != nil {
		return nil, errors.NewDatabaseError("list source status", err)
	}
	defer rows.Close()

	var out []types.SourceStatus
	for rows.Next() {
		var (
			status    types.SourceStatus
			state     string
			updatedAt time.Time
		)
		if err := rows.Scan(&status.Project, &state, &status.Error, &status.Rows, &status.Dropped, &updatedAt); err != nil {
			return nil, errors.NewDatabaseError("scan source status", err)
		}
		status.Status = types.Status(state)
		status.UpdatedAt = updatedAt.UnixMilli()
		out = append(out, status)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("list source status", err)
	}
	return out, nil
}
