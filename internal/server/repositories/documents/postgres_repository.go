// Package documents indexes opaque document blobs by owner and entity. Blob
// bytes are kept in object storage under StorageKey.
package documents

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

// LockParents needs no lookup: a document carries its owner directly.
func (r *PostgresRepository) LockParents(_ context.Context, userID string, d *models.Document) (*models.ParentState, error) {
	return &models.ParentState{Owned: d.UserID == userID}, nil
}

func (r *PostgresRepository) LockState(ctx context.Context, userID, id string) (*models.RowState, error) {
	query := `
		SELECT updated_at, sync_version, deleted_at IS NOT NULL, user_id = $2
		FROM documents
		WHERE id = $1
		FOR UPDATE`

	var s models.RowState
	err := r.db.QueryRowContext(ctx, query, id, userID).Scan(&s.UpdatedAt, &s.SyncVersion, &s.Deleted, &s.Owned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock document: %w", err)
	}
	return &s, nil
}

// StorageKey returns the blob key a document currently points at.
func (r *PostgresRepository) StorageKey(ctx context.Context, id string) (string, error) {
	var key string
	err := r.db.QueryRowContext(ctx, `SELECT storage_key FROM documents WHERE id = $1`, id).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read document storage key: %w", err)
	}
	return key, nil
}

// Insert does nothing when the id already exists or the (user, entity) pair
// has a live document.
func (r *PostgresRepository) Insert(ctx context.Context, d *models.Document) (bool, error) {
	query := `
		INSERT INTO documents (id, user_id, entity_type, entity_id, storage_key, upload_status,
			created_at, updated_at, deleted_at, sync_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT DO NOTHING`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		d.ID, d.UserID, string(d.EntityType), d.EntityID, d.StorageKey, d.UploadStatus,
		d.CreatedAt, d.UpdatedAt, d.DeletedAt, d.SyncVersion))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Update points the document at a new blob. An empty storage key or status
// keeps the stored one, so a tombstone does not lose track of its blob. The
// owner and the indexed entity never change.
func (r *PostgresRepository) Update(ctx context.Context, d *models.Document) error {
	query := `
		UPDATE documents SET
			storage_key = COALESCE(NULLIF($3, ''), storage_key),
			upload_status = COALESCE(NULLIF($4, ''), upload_status),
			updated_at = $5,
			deleted_at = COALESCE(deleted_at, $6),
			sync_version = $7
		WHERE id = $1 AND user_id = $2`

	n, err := dbx.Affected(r.db.ExecContext(ctx, query,
		d.ID, d.UserID, d.StorageKey, d.UploadStatus, d.UpdatedAt, d.DeletedAt, d.SyncVersion))
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

const documentColumns = `id, user_id, entity_type, entity_id, storage_key, upload_status,
	created_at, updated_at, deleted_at, sync_version`

func scanDocuments(rows *sql.Rows) ([]*models.Document, error) {
	defer rows.Close()

	var result []*models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.UserID, &d.EntityType, &d.EntityID, &d.StorageKey, &d.UploadStatus,
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

func (r *PostgresRepository) SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE user_id = $1 AND sync_version > $2`

	rows, err := r.db.QueryContext(ctx, query, userID, minVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to select documents: %w", err)
	}
	return scanDocuments(rows)
}

// MarkUploaded flips a pending document to completed so other devices pull
// it with a download URL. Marking a completed document again is a no-op.
func (r *PostgresRepository) MarkUploaded(ctx context.Context, userID, id string, at time.Time) (*models.Document, error) {
	query := `
		UPDATE documents SET
			upload_status = $3,
			updated_at = CASE WHEN upload_status = $3 THEN updated_at ELSE GREATEST(updated_at, $4) END,
			sync_version = CASE WHEN upload_status = $3 THEN sync_version ELSE sync_version + 1 END
		WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
		RETURNING ` + documentColumns

	rows, err := r.db.QueryContext(ctx, query, id, userID, models.UploadCompleted, at)
	if err != nil {
		return nil, fmt.Errorf("failed to mark document uploaded: %w", err)
	}
	docs, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, common.ErrorNotFound
	}
	return docs[0], nil
}

// PurgeCandidates returns documents tombstoned before cutoff with their
// storage keys, so the blobs can be removed after the rows are gone.
func (r *PostgresRepository) PurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*models.Document, error) {
	query := `SELECT ` + documentColumns + `
		FROM documents
		WHERE deleted_at IS NOT NULL AND deleted_at < $1
		ORDER BY deleted_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select purgeable documents: %w", err)
	}
	return scanDocuments(rows)
}

func (r *PostgresRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return dbx.Affected(r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ANY($1)`, ids))
}
