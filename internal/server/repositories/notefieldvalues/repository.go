package notefieldvalues

import (
	"context"
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/models"
)

type Repository interface {
	LockParents(ctx context.Context, userID string, v *models.NoteFieldValue) (*models.ParentState, error)
	LockState(ctx context.Context, userID, id string) (*models.RowState, error)
	Insert(ctx context.Context, v *models.NoteFieldValue) (bool, error)
	Update(ctx context.Context, v *models.NoteFieldValue) error
	SelectUpdated(ctx context.Context, userID string, minVersion int64) ([]*models.NoteFieldValue, error)

	ListByNote(ctx context.Context, noteID string) ([]*models.NoteFieldValue, error)
	SetValue(ctx context.Context, id, value string, at time.Time) error
	CountByFieldType(ctx context.Context, fieldTypeID string) (int64, error)

	DeleteByNoteIDs(ctx context.Context, noteIDs []string) (int64, error)
	DeleteTombstoned(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}
