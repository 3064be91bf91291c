package reviewlogs

import (
	"context"
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/models"
)

type Repository interface {
	LockParents(ctx context.Context, userID string, log *models.ReviewLog) (*models.ParentState, error)
	LockState(ctx context.Context, userID, id string) (*models.RowState, error)
	Insert(ctx context.Context, log *models.ReviewLog) (bool, error)
	Update(ctx context.Context, log *models.ReviewLog) error
	SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.ReviewLog, error)

	DeleteByCardIDs(ctx context.Context, cardIDs []string) (int64, error)
	DeleteTombstoned(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
