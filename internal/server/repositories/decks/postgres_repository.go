// Package decks provides PostgreSQL-backed storage for decks, the roots of a
// user's card graph.
package decks

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

// PostgresRepository implements deck storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// LockParents needs no lookup: a deck is a root owned by the pushing user.
func (r *PostgresRepository) LockParents(_ context.Context, userID string, deck *models.Deck) (*models.ParentState, error) {
	return &models.ParentState{Owned: deck.UserID == userID}, nil
}

// LockState locks the deck row for the rest of the transaction and reports
// its sync state. A missing row yields (nil, nil).
func (r *PostgresRepository) LockState(ctx context.Context, userID, id string) (*models.RowState, error) {
	query := `
		SELECT updated_at, sync_version, deleted_at IS NOT NULL, user_id = $2
		FROM decks WHERE id = $1
		FOR UPDATE`

	var s models.RowState
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&s.UpdatedAt, &s.SyncVersion, &s.Deleted, &s.Owned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock deck: %w", err)
	}
	return &s, nil
}

// Insert adds a new deck. It returns false when a row with the same id
// appeared concurrently.
func (r *PostgresRepository) Insert(ctx context.Context, d *models.Deck) (bool, error) {
	query := `
		INSERT INTO decks (id, user_id, name, description, created_at, updated_at, deleted_at, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		d.ID, d.UserID, d.Name, d.Description, d.CreatedAt, d.UpdatedAt, d.DeletedAt, d.SyncVersion))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Update overwrites the mutable fields of an owned deck. A tombstone, once
// set, is kept.
func (r *PostgresRepository) Update(ctx context.Context, d *models.Deck) error {
	query := `
		UPDATE decks SET
			name = $3,
			description = $4,
			updated_at = $5,
			deleted_at = COALESCE(deleted_at, $6),
			sync_version = $7
		WHERE id = $1 AND user_id = $2`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		d.ID, d.UserID, d.Name, d.Description, d.UpdatedAt, d.DeletedAt, d.SyncVersion))
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

// SelectUpdated returns all decks of userID with sync_version > minVersion,
// tombstones included.
func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Deck, error) {
	query := `
		SELECT id, user_id, name, description, created_at, updated_at, deleted_at, sync_version
		FROM decks
		WHERE user_id = $1 AND sync_version > $2`

	rows, err := r.db.QueryContext(ctx, query, userID, minVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select decks: %w", err)
	}
	defer rows.Close()

	var result []*models.Deck
	for rows.Next() {
		var d models.Deck
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Description,
			&d.CreatedAt, &d.UpdatedAt, &d.DeletedAt, &d.SyncVersion); err != nil {
			return nil, err
		}
		result = append(result, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SoftDelete tombstones a live deck. It returns false when the deck is
// missing or already deleted.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE decks SET
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

// PurgeCandidates selects up to limit decks tombstoned before cutoff that no
// note or card references any more. Rows locked by a concurrent purge are skipped.
func (r *PostgresRepository) PurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	query := `
		SELECT d.id FROM decks d
		WHERE d.deleted_at IS NOT NULL AND d.deleted_at < $1
			AND NOT EXISTS (SELECT 1 FROM notes n WHERE n.deck_id = d.id)
			AND NOT EXISTS (SELECT 1 FROM cards c WHERE c.deck_id = d.id)
		ORDER BY d.deleted_at
		LIMIT $2
		FOR UPDATE OF d SKIP LOCKED`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select purgeable decks: %w", err)
	}
	return dbx.ScanIDs(rows)
}

// DeleteByIDs permanently removes the given decks.
func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return dbx.Affected(r.db.ExecContext(ctx, `DELETE FROM decks WHERE id = ANY($1)`, ids))
}
