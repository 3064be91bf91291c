package cards

import (
	"context"
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/models"
)

type Repository interface {
	LockParents(ctx context.Context, userID string, card *models.Card) (*models.ParentState, error)
	LockState(ctx context.Context, userID, id string) (*models.RowState, error)
	Insert(ctx context.Context, card *models.Card) (bool, error)
	Update(ctx context.Context, card *models.Card) error
	SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.Card, error)

	ListByNote(ctx context.Context, noteID string) ([]*models.Card, error)
	SetFaces(ctx context.Context, id, front, back string, at time.Time) error
	SoftDeleteByNote(ctx context.Context, noteID string, at time.Time) (int64, error)
	SoftDeleteByDeck(ctx context.Context, deckID string, at time.Time) (int64, error)

	PurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
}
