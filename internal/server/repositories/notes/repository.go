package notes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/models"
)

type Repository interface {
	LockParents(ctx context.Context, userID string, note *models.Note) (*models.ParentState, error)
	LockState(ctx context.Context, userID, id string) (*models.RowState, error)
	Insert(ctx context.Context, note *models.Note) (bool, error)
	Update(ctx context.Context, note *models.Note) error
	SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Note, error)

	Get(ctx context.Context, userID, id string) (*models.Note, error)
	Touch(ctx context.Context, id string, at time.Time) error
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)
	SoftDeleteByDeck(ctx context.Context, deckID string, at time.Time) (int64, error)
	CountLiveByNoteType(ctx context.Context, noteTypeID string) (int64, error)

	PurgeCandidates(ctx context.Context, cutoff time.Time, limit int, purgingCardIDs []string) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
