// Package notefieldtypes stores the ordered field definitions of note types.
package notefieldtypes

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

// LockParents share-locks the note type so it cannot be tombstoned while
// the field type is written.
func (r *PostgresRepository) LockParents(ctx context.Context, userID string, f *models.NoteFieldType) (*models.ParentState, error) {
	query := `
		SELECT user_id = $2, deleted_at
		FROM note_types
		WHERE id = $1
		FOR SHARE`

	var p models.ParentState
	err := r.db.QueryRowContext(ctx, query, f.NoteTypeID, userID).Scan(&p.Owned, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ParentState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock note type: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) LockState(ctx context.Context, userID, id string) (*models.RowState, error) {
	query := `
		SELECT f.updated_at, f.sync_version, f.deleted_at IS NOT NULL, t.user_id = $2
		FROM note_field_types f
		JOIN note_types t ON t.id = f.note_type_id
		WHERE f.id = $1
		FOR UPDATE OF f`

	var s models.RowState
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&s.UpdatedAt, &s.SyncVersion, &s.Deleted, &s.Owned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock note field type: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, f *models.NoteFieldType) (bool, error) {
	query := `
		INSERT INTO note_field_types (id, note_type_id, name, field_order, created_at, updated_at, deleted_at, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		f.ID, f.NoteTypeID, f.Name, f.Order, f.CreatedAt, f.UpdatedAt, f.DeletedAt, f.SyncVersion))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) Update(ctx context.Context, f *models.NoteFieldType) error {
	query := `
		UPDATE note_field_types SET
			note_type_id = $2,
			name = $3,
			field_order = $4,
			updated_at = $5,
			deleted_at = COALESCE(deleted_at, $6),
			sync_version = $7
		WHERE id = $1`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		f.ID, f.NoteTypeID, f.Name, f.Order, f.UpdatedAt, f.DeletedAt, f.SyncVersion))
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

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.NoteFieldType, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select note field types: %w", err)
	}
	defer rows.Close()

	var result []*models.NoteFieldType
	for rows.Next() {
		var f models.NoteFieldType
		if err := rows.Scan(&f.ID, &f.NoteTypeID, &f.Name, &f.Order,
			&f.CreatedAt, &f.UpdatedAt, &f.DeletedAt, &f.SyncVersion); err != nil {
			return nil, err
		}
		result = append(result, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SelectUpdated returns field types of the user's note types above minVersion.
func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.NoteFieldType, error) {
	return r.query(ctx, `
		SELECT f.id, f.note_type_id, f.name, f.field_order, f.created_at, f.updated_at, f.deleted_at, f.sync_version
		FROM note_field_types f
		JOIN note_types t ON t.id = f.note_type_id
		WHERE t.user_id = $1 AND f.sync_version > $2`, userID, minVersion)
}

// ListByNoteType returns the live fields of a note type in display order.
func (r *PostgresRepository) ListByNoteType(ctx context.Context, noteTypeID string) ([]*models.NoteFieldType, error) {
	return r.query(ctx, `
		SELECT id, note_type_id, name, field_order, created_at, updated_at, deleted_at, sync_version
		FROM note_field_types
		WHERE note_type_id = $1 AND deleted_at IS NULL
		ORDER BY field_order`, noteTypeID)
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE note_field_types SET
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

func (r *PostgresRepository) SoftDeleteByNoteType(ctx context.Context, noteTypeID string, at time.Time) (int64, error) {
	query := `
		UPDATE note_field_types SET
			deleted_at = $2,
			updated_at = GREATEST(updated_at, $2),
			sync_version = sync_version + 1
		WHERE note_type_id = $1 AND deleted_at IS NULL`

	return dbx.Affected(r.db.ExecContext(ctx, query, noteTypeID, at))
}

// PurgeCandidates selects field types tombstoned before cutoff that no value
// references. Values left behind by a forced delete hold the field type back
// until their note is purged.
func (r *PostgresRepository) PurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT f.id FROM note_field_types f
		WHERE f.deleted_at IS NOT NULL AND f.deleted_at < $1
			AND NOT EXISTS (SELECT 1 FROM note_field_values v WHERE v.field_type_id = f.id)
		ORDER BY f.deleted_at
		LIMIT $2
		FOR UPDATE OF f SKIP LOCKED`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select purgeable note field types: %w", err)
	}
	return dbx.ScanIDs(rows)
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return dbx.Affected(r.db.ExecContext(ctx, `DELETE FROM note_field_types WHERE id = ANY($1)`, ids))
}

// DeleteByNoteTypeIDs removes every field type of the given note types.
func (r *PostgresRepository) DeleteByNoteTypeIDs(ctx context.Context, noteTypeIDs []string) (int64, error) {
	if len(noteTypeIDs) == 0 {
		return 0, nil
	}
	return dbx.Affected(r.db.ExecContext(ctx, `DELETE FROM note_field_types WHERE note_type_id = ANY($1)`, noteTypeIDs))
}
