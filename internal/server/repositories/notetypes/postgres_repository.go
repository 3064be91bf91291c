// Package notetypes stores note types, which own the card templates and the
// ordered field definitions of notes.
package notetypes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) LockParents(_ context.Context, userID string, nt *models.NoteType) (*models.ParentState, error) {
	return &models.ParentState{Owned: nt.UserID == userID}, nil
}

func (r *PostgresRepository) LockState(ctx context.Context, userID, id string) (*models.RowState, error) {
	query := `
		SELECT updated_at, sync_version, deleted_at IS NOT NULL, user_id = $2
		FROM note_types WHERE id = $1
		FOR UPDATE`

	var s models.RowState
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&s.UpdatedAt, &s.SyncVersion, &s.Deleted, &s.Owned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock note type: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, nt *models.NoteType) (bool, error) {
	query := `
		INSERT INTO note_types (id, user_id, name, front_template, back_template, is_reversible,
			created_at, updated_at, deleted_at, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		nt.ID, nt.UserID, nt.Name, nt.FrontTemplate, nt.BackTemplate, nt.IsReversible,
		nt.CreatedAt, nt.UpdatedAt, nt.DeletedAt, nt.SyncVersion))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) Update(ctx context.Context, nt *models.NoteType) error {
	query := `
		UPDATE note_types SET
			name = $3,
			front_template = $4,
			back_template = $5,
			is_reversible = $6,
			updated_at = $7,
			deleted_at = COALESCE(deleted_at, $8),
			sync_version = $9
		WHERE id = $1 AND user_id = $2`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		nt.ID, nt.UserID, nt.Name, nt.FrontTemplate, nt.BackTemplate, nt.IsReversible,
		nt.UpdatedAt, nt.DeletedAt, nt.SyncVersion))
	if err != nil {
		return err
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

const selectColumns = `id, user_id, name, front_template, back_template, is_reversible,
	created_at, updated_at, deleted_at, sync_version`

func scan(row interface{ Scan(...any) error }) (*models.NoteType, error) {
	var nt models.NoteType
	err := row.Scan(&nt.ID, &nt.UserID, &nt.Name, &nt.FrontTemplate, &nt.BackTemplate, &nt.IsReversible,
		&nt.CreatedAt, &nt.UpdatedAt, &nt.DeletedAt, &nt.SyncVersion)
	if err != nil {
		return nil, err
	}
	return &nt, nil
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.NoteType, error) {
	query := `SELECT ` + selectColumns + ` FROM note_types WHERE user_id = $1 AND sync_version > $2`

	rows, err := r.db.QueryContext(ctx, query, userID, minVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select note types: %w", err)
	}
	defer rows.Close()

	var result []*models.NoteType
	for rows.Next() {
		nt, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, nt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns a live note type owned by userID, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.NoteType, error) {
	query := `SELECT ` + selectColumns + ` FROM note_types WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`

	nt, err := scan(r.db.QueryRowContext(ctx, query, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note type: %w", err)
	}
	return nt, nil
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE note_types SET
			deleted_at = $2,
			updated_at = GREATEST(updated_at, $2),
			sync_version = sync_version + 1
		WHERE id = $1 AND deleted_at IS NULL`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query, id, at))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// PurgeCandidates selects note types tombstoned before cutoff that no note,
// and no value of any of their field types, still references.
func (r *PostgresRepository) PurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT t.id FROM note_types t
		WHERE t.deleted_at IS NOT NULL AND t.deleted_at < $1
			AND NOT EXISTS (SELECT 1 FROM notes n WHERE n.note_type_id = t.id)
			AND NOT EXISTS (
				SELECT 1 FROM note_field_values v
				JOIN note_field_types f ON f.id = v.field_type_id
				WHERE f.note_type_id = t.id)
		ORDER BY t.deleted_at
		LIMIT $2
		FOR UPDATE OF t SKIP LOCKED`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select purgeable note types: %w", err)
	}
	return dbx.ScanIDs(rows)
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return dbx.Affected(r.db.ExecContext(ctx, `DELETE FROM note_types WHERE id = ANY($1)`, ids))
}
