// Package notefieldvalues stores the per-field content of notes. Values are
// not tombstoned when their note is; they are purged together with it.
package notefieldvalues

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

// LockParents share-locks the note of v. The note (through its deck) and the
// field type (through its note type) must both belong to userID. Only the
// note decides whether the value is dead: values of a force-deleted field
// type stay with their note.
func (r *PostgresRepository) LockParents(ctx context.Context, userID string, v *models.NoteFieldValue) (*models.ParentState, error) {
	query := `
		SELECT d.user_id = $3 AND t.user_id = $3, n.deleted_at
		FROM notes n
		JOIN decks d ON d.id = n.deck_id,
			note_field_types f
		JOIN note_types t ON t.id = f.note_type_id
		WHERE n.id = $1 AND f.id = $2
		FOR SHARE OF n`

	var p models.ParentState
	err := r.db.QueryRowContext(ctx, query, v.NoteID, v.FieldTypeID, userID).Scan(&p.Owned, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ParentState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock field value parents: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) LockState(ctx context.Context, userID, id string) (*models.RowState, error) {
	query := `
		SELECT v.updated_at, v.sync_version, v.deleted_at IS NOT NULL, d.user_id = $2
		FROM note_field_values v
		JOIN notes n ON n.id = v.note_id
		JOIN decks d ON d.id = n.deck_id
		WHERE v.id = $1
		FOR UPDATE OF v`

	var s models.RowState
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&s.UpdatedAt, &s.SyncVersion, &s.Deleted, &s.Owned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock field value: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, v *models.NoteFieldValue) (bool, error) {
	query := `
		INSERT INTO note_field_values (id, note_id, field_type_id, value, created_at, updated_at, deleted_at, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		v.ID, v.NoteID, v.FieldTypeID, v.Value, v.CreatedAt, v.UpdatedAt, v.DeletedAt, v.SyncVersion))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) Update(ctx context.Context, v *models.NoteFieldValue) error {
	query := `
		UPDATE note_field_values SET
			note_id = $2,
			field_type_id = $3,
			value = $4,
			updated_at = $5,
			deleted_at = COALESCE(deleted_at, $6),
			sync_version = $7
		WHERE id = $1`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		v.ID, v.NoteID, v.FieldTypeID, v.Value, v.UpdatedAt, v.DeletedAt, v.SyncVersion))
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

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.NoteFieldValue, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select field values: %w", err)
	}
	defer rows.Close()

	var result []*models.NoteFieldValue
	for rows.Next() {
		var v models.NoteFieldValue
		if err := rows.Scan(&v.ID, &v.NoteID, &v.FieldTypeID, &v.Value,
			&v.CreatedAt, &v.UpdatedAt, &v.DeletedAt, &v.SyncVersion); err != nil {
			return nil, err
		}
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.NoteFieldValue, error) {
	return r.query(ctx, `
		SELECT v.id, v.note_id, v.field_type_id, v.value, v.created_at, v.updated_at, v.deleted_at, v.sync_version
		FROM note_field_values v
		JOIN notes n ON n.id = v.note_id
		JOIN decks d ON d.id = n.deck_id
		WHERE d.user_id = $1 AND v.sync_version > $2`, userID, minVersion)
}

func (r *PostgresRepository) ListByNote(ctx context.Context, noteID string) ([]*models.NoteFieldValue, error) {
	return r.query(ctx, `
		SELECT id, note_id, field_type_id, value, created_at, updated_at, deleted_at, sync_version
		FROM note_field_values
		WHERE note_id = $1 AND deleted_at IS NULL`, noteID)
}

// SetValue rewrites the content of one value as a direct edit.
func (r *PostgresRepository) SetValue(ctx context.Context, id, value string, at time.Time) error {
	query := `
		UPDATE note_field_values SET
			value = $2,
			updated_at = GREATEST(updated_at, $3),
			sync_version = sync_version + 1
		WHERE id = $1`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query, id, value, at))
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// CountByFieldType counts live values of live notes referencing a field type.
// Values of tombstoned notes go with their note and do not block a delete.
func (r *PostgresRepository) CountByFieldType(ctx context.Context, fieldTypeID string) (int64, error) {
	query := `
		SELECT COUNT(*) FROM note_field_values v
		JOIN notes n ON n.id = v.note_id
		WHERE v.field_type_id = $1 AND v.deleted_at IS NULL AND n.deleted_at IS NULL`

	var n int64
	err := r.db.QueryRowContext(ctx, query, fieldTypeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count field values: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) DeleteByNoteIDs(ctx context.Context, noteIDs []string) (int64, error) {
	if len(noteIDs) == 0 {
		return 0, nil
	}
	return dbx.Affected(r.db.ExecContext(ctx, `DELETE FROM note_field_values WHERE note_id = ANY($1)`, noteIDs))
}

// DeleteTombstoned removes up to limit values that were tombstoned on their
// own (by a client push) before cutoff.
func (r *PostgresRepository) DeleteTombstoned(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM note_field_values WHERE id IN (
			SELECT id FROM note_field_values
			WHERE deleted_at IS NOT NULL AND deleted_at < $1
			ORDER BY deleted_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED)`

	return dbx.Affected(r.db.ExecContext(ctx, query, cutoff, limit))
}
