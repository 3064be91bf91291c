package reviewlogs

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

func (r *PostgresRepository) LockParents(ctx context.Context, userID string, l *models.ReviewLog) (*models.ParentState, error) {
	query := `
		SELECT d.user_id = $2, c.deleted_at
		FROM cards c
		JOIN decks d ON d.id = c.deck_id
		WHERE c.id = $1
		FOR SHARE OF c`

	var p models.ParentState
	err := r.db.QueryRowContext(ctx, query, l.CardID, userID).Scan(&p.Owned, &p.DeletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.ParentState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock review log parents: %w", err)
	}
	return &p, nil
}

func (r *PostgresRepository) LockState(ctx context.Context, userID, id string) (*models.RowState, error) {
	query := `
		SELECT l.updated_at, l.sync_version, l.deleted_at IS NOT NULL, d.user_id = $2
		FROM review_logs l
		JOIN cards c ON c.id = l.card_id
		JOIN decks d ON d.id = c.deck_id
		WHERE l.id = $1
		FOR UPDATE OF l`

	var s models.RowState
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&s.UpdatedAt, &s.SyncVersion, &s.Deleted, &s.Owned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock review log: %w", err)
	}
	return &s, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, l *models.ReviewLog) (bool, error) {
	query := `
		INSERT INTO review_logs (id, card_id, rating, state, due, stability, difficulty,
			elapsed_days, scheduled_days, reviewed_at, created_at, updated_at, deleted_at, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		l.ID, l.CardID, int(l.Rating), string(l.State), l.Due, l.Stability, l.Difficulty,
		l.ElapsedDays, l.ScheduledDays, l.ReviewedAt, l.CreatedAt, l.UpdatedAt, l.DeletedAt, l.SyncVersion))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Update only carries a tombstone. Review content is immutable once written.
func (r *PostgresRepository) Update(ctx context.Context, l *models.ReviewLog) error {
	query := `
		UPDATE review_logs SET
			updated_at = $2,
			deleted_at = COALESCE(deleted_at, $3),
			sync_version = $4
		WHERE id = $1`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query, l.ID, l.UpdatedAt, l.DeletedAt, l.SyncVersion))
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

func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.ReviewLog, error) {
	query := `
		SELECT l.id, l.card_id, l.rating, l.state, l.due, l.stability, l.difficulty,
			l.elapsed_days, l.scheduled_days, l.reviewed_at,
			l.created_at, l.updated_at, l.deleted_at, l.sync_version
		FROM review_logs l
		JOIN cards c ON c.id = l.card_id
		JOIN decks d ON d.id = c.deck_id
		WHERE d.user_id = $1 AND l.sync_version > $2`

	rows, err := r.db.QueryContext(ctx, query, userID, minVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select review logs: %w", err)
	}
	defer rows.Close()

	var result []*models.ReviewLog
	for rows.Next() {
		var l models.ReviewLog
		if err := rows.Scan(&l.ID, &l.CardID, &l.Rating, &l.State, &l.Due, &l.Stability, &l.Difficulty,
			&l.ElapsedDays, &l.ScheduledDays, &l.ReviewedAt,
			&l.CreatedAt, &l.UpdatedAt, &l.DeletedAt, &l.SyncVersion); err != nil {
			return nil, err
		}
		result = append(result, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteByCardIDs removes the review history of cards being purged.
func (r *PostgresRepository) DeleteByCardIDs(ctx context.Context, cardIDs []string) (int64, error) {
	if len(cardIDs) == 0 {
		return 0, nil
	}
	return dbx.Affected(r.db.ExecContext(ctx, `DELETE FROM review_logs WHERE card_id = ANY($1)`, cardIDs))
}

// DeleteTombstoned removes up to limit review logs that were themselves
// tombstoned before cutoff.
func (r *PostgresRepository) DeleteTombstoned(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM review_logs WHERE id IN (
			SELECT id FROM review_logs
			WHERE deleted_at IS NOT NULL AND deleted_at < $1
			ORDER BY deleted_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED)`

	return dbx.Affected(r.db.ExecContext(ctx, query, cutoff, limit))
}
