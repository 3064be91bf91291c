package decks

import (
	"context"
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/models"
)

type Repository interface {
	LockParents(ctx context.Context, userID string, deck *models.Deck) (*models.ParentState, error)
	LockState(ctx context.Context, userID, id string) (*models.RowState, error)
	Insert(ctx context.Context, deck *models.Deck) (bool, error)
	Update(ctx context.Context, deck *models.Deck) error
	SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Deck, error)

	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)

	PurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
