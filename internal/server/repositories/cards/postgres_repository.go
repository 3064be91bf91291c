// Package cards stores cards together with the scheduling state the external
// scheduler computes for them.
package cards

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

// LockParents share-locks the card's deck and note. The deck, and the deck
// of the note, must belong to userID; the card is dead if its deck or its
// note is.
func (r *PostgresRepository) LockParents(ctx context.Context, userID string, c *models.Card) (*models.ParentState, error) {
	query := `
		SELECT d.user_id = $3 AND nd.user_id = $3, LEAST(d.deleted_at, n.deleted_at)
		FROM decks d, notes n
		JOIN decks nd ON nd.id = n.deck_id
		WHERE d.id = $1 AND n.id = $2
		FOR SHARE OF d, n`

	var p models.ParentState
	err := r.db.QueryRowContext(ctx, query, c.DeckID, c.NoteID, userID).Scan(&p.Owned, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ParentState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock card parents: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) LockState(ctx context.Context, userID, id string) (*models.RowState, error) {
	query := `
		SELECT c.updated_at, c.sync_version, c.deleted_at IS NOT NULL, d.user_id = $2
		FROM cards c
		JOIN decks d ON d.id = c.deck_id
		WHERE c.id = $1
		FOR UPDATE OF c`

	var s models.RowState
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&s.UpdatedAt, &s.SyncVersion, &s.Deleted, &s.Owned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock card: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, c *models.Card) (bool, error) {
	query := `
		INSERT INTO cards (id, note_id, deck_id, front, back, is_reversed,
			state, due, stability, difficulty, elapsed_days, scheduled_days, reps, lapses, last_review,
			created_at, updated_at, deleted_at, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO NOTHING`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		c.ID, c.NoteID, c.DeckID, c.Front, c.Back, c.IsReversed,
		string(c.State), c.Due, c.Stability, c.Difficulty, c.ElapsedDays, c.ScheduledDays, c.Reps, c.Lapses, c.LastReview,
		c.CreatedAt, c.UpdatedAt, c.DeletedAt, c.SyncVersion))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Update overwrites content and scheduling state. note_id is immutable: a
// card never moves to another note.
func (r *PostgresRepository) Update(ctx context.Context, c *models.Card) error {
	query := `
		UPDATE cards SET
			deck_id = $2,
			front = $3,
			back = $4,
			is_reversed = $5,
			state = $6,
			due = $7,
			stability = $8,
			difficulty = $9,
			elapsed_days = $10,
			scheduled_days = $11,
			reps = $12,
			lapses = $13,
			last_review = $14,
			updated_at = $15,
			deleted_at = COALESCE(deleted_at, $16),
			sync_version = $17
		WHERE id = $1`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		c.ID, c.DeckID, c.Front, c.Back, c.IsReversed,
		string(c.State), c.Due, c.Stability, c.Difficulty, c.ElapsedDays, c.ScheduledDays, c.Reps, c.Lapses, c.LastReview,
		c.UpdatedAt, c.DeletedAt, c.SyncVersion))
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

const cardColumns = `c.id, c.note_id, c.deck_id, c.front, c.back, c.is_reversed,
	c.state, c.due, c.stability, c.difficulty, c.elapsed_days, c.scheduled_days, c.reps, c.lapses, c.last_review,
	c.created_at, c.updated_at, c.deleted_at, c.sync_version`

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.Card, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select cards: %w", err)
	}
	defer rows.Close()

	var result []*models.Card
	for rows.Next() {
		var c models.Card
		if err := rows.Scan(&c.ID, &c.NoteID, &c.DeckID, &c.Front, &c.Back, &c.IsReversed,
			&c.State, &c.Due, &c.Stability, &c.Difficulty, &c.ElapsedDays, &c.ScheduledDays,
			&c.Reps, &c.Lapses, &c.LastReview,
			&c.CreatedAt, &c.UpdatedAt, &c.DeletedAt, &c.SyncVersion); err != nil {
			return nil, err
		}
		result = append(result, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SelectUpdated returns cards reachable through the user's decks above minVersion.
func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Card, error) {
	return r.query(ctx, `
		SELECT `+cardColumns+`
		FROM cards c
		JOIN decks d ON d.id = c.deck_id
		WHERE d.user_id = $1 AND c.sync_version > $2`, userID, minVersion)
}

// ListByNote returns the live cards generated from a note.
func (r *PostgresRepository) ListByNote(ctx context.Context, noteID string) ([]*models.Card, error) {
	return r.query(ctx, `
		SELECT `+cardColumns+`
		FROM cards c
		WHERE c.note_id = $1 AND c.deleted_at IS NULL
		ORDER BY c.is_reversed`, noteID)
}

// SetFaces stores re-rendered card text after its note was edited.
func (r *PostgresRepository) SetFaces(ctx context.Context, id, front, back string, at time.Time) error {
	query := `
		UPDATE cards SET
			front = $2,
			back = $3,
			updated_at = GREATEST(updated_at, $4),
			sync_version = sync_version + 1
		WHERE id = $1`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query, id, front, back, at))
	if err != nil {
		return err
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) SoftDeleteByNote(ctx context.Context, noteID string, at time.Time) (int64, error) {
	query := `
		UPDATE cards SET
			deleted_at = $2,
			updated_at = GREATEST(updated_at, $2),
			sync_version = sync_version + 1
		WHERE note_id = $1 AND deleted_at IS NULL`

	return dbx.Affected(r.db.ExecContext(ctx, query, noteID, at))
}

func (r *PostgresRepository) SoftDeleteByDeck(ctx context.Context, deckID string, at time.Time) (int64, error) {
	query := `
		UPDATE cards SET
			deleted_at = $2,
			updated_at = GREATEST(updated_at, $2),
			sync_version = sync_version + 1
		WHERE deck_id = $1 AND deleted_at IS NULL`

	return dbx.Affected(r.db.ExecContext(ctx, query, deckID, at))
}

// PurgeCandidates selects up to limit cards tombstoned before cutoff. Their
// review logs go with them.
func (r *PostgresRepository) PurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT c.id FROM cards c
		WHERE c.deleted_at IS NOT NULL AND c.deleted_at < $1
		ORDER BY c.deleted_at
		LIMIT $2
		FOR UPDATE OF c SKIP LOCKED`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select purgeable cards: %w", err)
	}
	return dbx.ScanIDs(rows)
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return dbx.Affected(r.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ANY($1)`, ids))
}
