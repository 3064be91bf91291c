package notefieldtypes

import (
	"context"
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/models"
)

type Repository interface {
	LockParents(ctx context.Context, userID string, f *models.NoteFieldType) (*models.ParentState, error)
	LockState(ctx context.Context, userID, id string) (*models.RowState, error)
	Insert(ctx context.Context, f *models.NoteFieldType) (bool, error)
	Update(ctx context.Context, f *models.NoteFieldType) error
	SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.NoteFieldType, error)

	ListByNoteType(ctx context.Context, noteTypeID string) ([]*models.NoteFieldType, error)
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)
	SoftDeleteByNoteType(ctx context.Context, noteTypeID string, at time.Time) (int64, error)

	PurgeCandidates(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) (int64, error)
	DeleteByNoteTypeIDs(ctx context.Context, noteTypeIDs []string) (int64, error)
}
