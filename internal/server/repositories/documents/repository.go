package documents

import (
	"context"
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/models"
)

type Repository interface {
	LockParents(ctx context.Context, userID string, doc *models.Document) (*models.ParentState, error)
	LockState(ctx context.Context, userID, id string) (*models.RowState, error)
	StorageKey(ctx context.Context, id string) (string, error)
	Insert(ctx context.Context, doc *models.Document) (bool, error)
	Update(ctx context.Context, doc *models.Document) error
	SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Document, error)

	MarkUploaded(ctx context.Context, userID, id string, at time.Time) (*models.Document, error)

	PurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*models.Document, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
