package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/repomanager"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// CascadeService soft-deletes a row together with its dependents, so no live
// child is left under a dead parent. Every operation is scoped to the calling
// user and runs in one transaction; rows of other users look missing.
type CascadeService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         func() time.Time
}

func NewCascadeService(db *sql.DB, repomanager repomanager.RepositoryManager, logger logging.Logger) *CascadeService {
	return &CascadeService{
		db:          db,
		repomanager: repomanager,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func live(s *models.RowState) bool {
	return s != nil && s.Owned && !s.Deleted
}

func (s *CascadeService) inTx(ctx context.Context, op, userID, id string, fn func(ctx context.Context, tx dbx.DBTX) (bool, error)) (deleted bool, err error) {
	ctx, span := tracer.Start(ctx, "CascadeService."+op, trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("row.id", id),
	))
	defer func() { endSpan(span, err) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		deleted, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		return false, storageError(err)
	}
	span.SetAttributes(attribute.Bool("deleted", deleted))
	return deleted, nil
}

// DeleteNote tombstones a note and every card generated from it. It reports
// false when the note is missing, already deleted or not the caller's.
func (s *CascadeService) DeleteNote(ctx context.Context, userID, id string) (bool, error) {
	return s.inTx(ctx, "DeleteNote", userID, id, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		return s.DeleteNoteInTx(ctx, tx, userID, id)
	})
}

func (s *CascadeService) DeleteNoteInTx(ctx context.Context, tx dbx.DBTX, userID, id string) (bool, error) {
	notes := s.repomanager.Notes(tx)

	state, err := notes.LockState(ctx, userID, id)
	if err != nil || !live(state) {
		return false, err
	}

	at := s.now()
	n, err := s.cascadeNote(ctx, tx, id, at)
	if err != nil {
		return false, err
	}
	ok, err := notes.SoftDelete(ctx, id, at)
	if err != nil {
		return false, err
	}
	s.logger.Info(ctx, "note deleted", "user_id", userID, "note_id", id, "cards", n)
	return ok, nil
}

// DeleteNoteFieldType tombstones a field type. Values that still reference it
// block the delete unless force is set; forced deletes leave the values in
// place and they are purged together with their note.
func (s *CascadeService) DeleteNoteFieldType(ctx context.Context, userID, id string, force bool) (bool, error) {
	return s.inTx(ctx, "DeleteNoteFieldType", userID, id, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		return s.DeleteNoteFieldTypeInTx(ctx, tx, userID, id, force)
	})
}

func (s *CascadeService) DeleteNoteFieldTypeInTx(ctx context.Context, tx dbx.DBTX, userID, id string, force bool) (bool, error) {
	fieldTypes := s.repomanager.NoteFieldTypes(tx)

	state, err := fieldTypes.LockState(ctx, userID, id)
	if err != nil || !live(state) {
		return false, err
	}

	refs, err := s.repomanager.NoteFieldValues(tx).CountByFieldType(ctx, id)
	if err != nil {
		return false, err
	}
	if refs > 0 && !force {
		return false, &IntegrityError{Entity: models.EntityNoteFieldType, ID: id, Dependents: refs}
	}
	if refs > 0 {
		s.logger.Warn(ctx, "field type force-deleted with values", "user_id", userID, "field_type_id", id, "values", refs)
	}

	return fieldTypes.SoftDelete(ctx, id, s.now())
}

// DeleteNoteType tombstones a note type and its field types. Live notes of
// the type block the delete.
func (s *CascadeService) DeleteNoteType(ctx context.Context, userID, id string) (bool, error) {
	return s.inTx(ctx, "DeleteNoteType", userID, id, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		return s.DeleteNoteTypeInTx(ctx, tx, userID, id)
	})
}

func (s *CascadeService) DeleteNoteTypeInTx(ctx context.Context, tx dbx.DBTX, userID, id string) (bool, error) {
	noteTypes := s.repomanager.NoteTypes(tx)

	state, err := noteTypes.LockState(ctx, userID, id)
	if err != nil || !live(state) {
		return false, err
	}

	notes, err := s.repomanager.Notes(tx).CountLiveByNoteType(ctx, id)
	if err != nil {
		return false, err
	}
	if notes > 0 {
		return false, &IntegrityError{Entity: models.EntityNoteType, ID: id, Dependents: notes}
	}

	at := s.now()
	if _, err := s.cascadeNoteType(ctx, tx, id, at); err != nil {
		return false, err
	}
	return noteTypes.SoftDelete(ctx, id, at)
}

// DeleteDeck tombstones a deck with all of its notes and cards.
func (s *CascadeService) DeleteDeck(ctx context.Context, userID, id string) (bool, error) {
	return s.inTx(ctx, "DeleteDeck", userID, id, func(ctx context.Context, tx dbx.DBTX) (bool, error) {
		return s.DeleteDeckInTx(ctx, tx, userID, id)
	})
}

func (s *CascadeService) DeleteDeckInTx(ctx context.Context, tx dbx.DBTX, userID, id string) (bool, error) {
	decks := s.repomanager.Decks(tx)

	state, err := decks.LockState(ctx, userID, id)
	if err != nil || !live(state) {
		return false, err
	}

	at := s.now()
	cards, notes, err := s.cascadeDeck(ctx, tx, id, at)
	if err != nil {
		return false, err
	}
	ok, err := decks.SoftDelete(ctx, id, at)
	if err != nil {
		return false, err
	}
	s.logger.Info(ctx, "deck deleted", "user_id", userID, "deck_id", id, "notes", notes, "cards", cards)
	return ok, nil
}

func (s *CascadeService) cascadeNote(ctx context.Context, tx dbx.DBTX, noteID string, at time.Time) (int64, error) {
	return s.repomanager.Cards(tx).SoftDeleteByNote(ctx, noteID, at)
}

func (s *CascadeService) cascadeNoteType(ctx context.Context, tx dbx.DBTX, noteTypeID string, at time.Time) (int64, error) {
	return s.repomanager.NoteFieldTypes(tx).SoftDeleteByNoteType(ctx, noteTypeID, at)
}

func (s *CascadeService) cascadeDeck(ctx context.Context, tx dbx.DBTX, deckID string, at time.Time) (cards, notes int64, err error) {
	cards, err = s.repomanager.Cards(tx).SoftDeleteByDeck(ctx, deckID, at)
	if err != nil {
		return 0, 0, err
	}
	notes, err = s.repomanager.Notes(tx).SoftDeleteByDeck(ctx, deckID, at)
	if err != nil {
		return 0, 0, err
	}
	return cards, notes, nil
}
