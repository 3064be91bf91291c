// Package notes stores notes. A note belongs to a deck, so ownership is
// resolved through decks.user_id.
package notes

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

// LockParents share-locks the deck and the note type of note. Both must
// belong to userID; the note is dead if either of them is.
func (r *PostgresRepository) LockParents(ctx context.Context, userID string, note *models.Note) (*models.ParentState, error) {
	query := `
		SELECT d.user_id = $3 AND t.user_id = $3, LEAST(d.deleted_at, t.deleted_at)
		FROM decks d, note_types t
		WHERE d.id = $1 AND t.id = $2
		FOR SHARE OF d, t`

	var p models.ParentState
	err := r.db.QueryRowContext(ctx, query, note.DeckID, note.NoteTypeID, userID).Scan(&p.Owned, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ParentState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock note parents: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) LockState(ctx context.Context, userID, id string) (*models.RowState, error) {
	query := `
		SELECT n.updated_at, n.sync_version, n.deleted_at IS NOT NULL, d.user_id = $2
		FROM notes n
		JOIN decks d ON d.id = n.deck_id
		WHERE n.id = $1
		FOR UPDATE OF n`

	var s models.RowState
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&s.UpdatedAt, &s.SyncVersion, &s.Deleted, &s.Owned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock note: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, n *models.Note) (bool, error) {
	query := `
		INSERT INTO notes (id, deck_id, note_type_id, created_at, updated_at, deleted_at, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	affected, err := dbx.Affected(r.db.ExecContext(ctx, query,
		n.ID, n.DeckID, n.NoteTypeID, n.CreatedAt, n.UpdatedAt, n.DeletedAt, n.SyncVersion))
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *PostgresRepository) Update(ctx context.Context, n *models.Note) error {
	query := `
		UPDATE notes SET
			deck_id = $2,
			note_type_id = $3,
			updated_at = $4,
			deleted_at = COALESCE(deleted_at, $5),
			sync_version = $6
		WHERE id = $1`

	affected, err := dbx.Affected(r.db.ExecContext(ctx, query,
		n.ID, n.DeckID, n.NoteTypeID, n.UpdatedAt, n.DeletedAt, n.SyncVersion))
	if err != nil {
		return err
	}
	switch affected {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", affected)
	}
}

func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Note, error) {
	query := `
		SELECT n.id, n.deck_id, n.note_type_id, n.created_at, n.updated_at, n.deleted_at, n.sync_version
		FROM notes n
		JOIN decks d ON d.id = n.deck_id
		WHERE d.user_id = $1 AND n.sync_version > $2`

	rows, err := r.db.QueryContext(ctx, query, userID, minVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.DeckID, &n.NoteTypeID,
			&n.CreatedAt, &n.UpdatedAt, &n.DeletedAt, &n.SyncVersion); err != nil {
			return nil, err
		}
		result = append(result, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns a live note visible to userID, or common.ErrorNotFound.
func (r *PostgresRepository) Get(ctx context.Context, userID, id string) (*models.Note, error) {
	query := `
		SELECT n.id, n.deck_id, n.note_type_id, n.created_at, n.updated_at, n.deleted_at, n.sync_version
		FROM notes n
		JOIN decks d ON d.id = n.deck_id
		WHERE n.id = $1 AND d.user_id = $2 AND n.deleted_at IS NULL`

	var n models.Note
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&n.ID, &n.DeckID, &n.NoteTypeID,
		&n.CreatedAt, &n.UpdatedAt, &n.DeletedAt, &n.SyncVersion)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &n, nil
}

// Touch records a direct edit of the note's content.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE notes SET
			updated_at = GREATEST(updated_at, $2),
			sync_version = sync_version + 1
		WHERE id = $1`

	_, err := dbx.Affected(r.db.ExecContext(ctx, query, id, at))
	return err
}

func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE notes SET
			deleted_at = $2,
			updated_at = GREATEST(updated_at, $2),
			sync_version = sync_version + 1
		WHERE id = $1 AND deleted_at IS NULL`

	affected, err := dbx.Affected(r.db.ExecContext(ctx, query, id, at))
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *PostgresRepository) SoftDeleteByDeck(ctx context.Context, deckID string, at time.Time) (int64, error) {
	query := `
		UPDATE notes SET
			deleted_at = $2,
			updated_at = GREATEST(updated_at, $2),
			sync_version = sync_version + 1
		WHERE deck_id = $1 AND deleted_at IS NULL`

	return dbx.Affected(r.db.ExecContext(ctx, query, deckID, at))
}

func (r *PostgresRepository) CountLiveByNoteType(ctx context.Context, noteTypeID string) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE note_type_id = $1 AND deleted_at IS NULL`, noteTypeID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return n, nil
}

// PurgeCandidates selects notes tombstoned before cutoff whose cards are all
// among purgingCardIDs, i.e. removed in the same pass.
func (r *PostgresRepository) PurgeCandidates(ctx context.Context, cutoff time.Time, limit int, purgingCardIDs []string) ([]string, error) {
	if purgingCardIDs == nil {
		// a NULL array would make the guard below vacuous
		purgingCardIDs = []string{}
	}
	query := `
		SELECT n.id FROM notes n
		WHERE n.deleted_at IS NOT NULL AND n.deleted_at < $1
			AND NOT EXISTS (
				SELECT 1 FROM cards c
				WHERE c.note_id = n.id AND NOT (c.id = ANY($3)))
		ORDER BY n.deleted_at
		LIMIT $2
		FOR UPDATE OF n SKIP LOCKED`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit, purgingCardIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to select purgeable notes: %w", err)
	}
	return dbx.ScanIDs(rows)
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return dbx.Affected(r.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ANY($1)`, ids))
}
