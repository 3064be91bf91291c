package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/dbx"
	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/dmitrijs2005/decksync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// NoteBundle is a note with the values and cards that hang off it.
type NoteBundle struct {
	Note   *models.Note             `json:"note"`
	Values []*models.NoteFieldValue `json:"values"`
	Cards  []*models.Card           `json:"cards"`
}

// NoteService authors notes directly on the server, outside of push.
type NoteService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	renderer    Renderer
	logger      logging.Logger
	now         func() time.Time
	newID       func() string
}

func NewNoteService(db *sql.DB, repomanager repomanager.RepositoryManager, renderer Renderer, logger logging.Logger) *NoteService {
	if renderer == nil {
		renderer = PlaceholderRenderer{}
	}
	return &NoteService{
		db:          db,
		repomanager: repomanager,
		renderer:    renderer,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

func (s *NoteService) envelope(at time.Time) models.Envelope {
	return models.Envelope{ID: s.newID(), CreatedAt: at, UpdatedAt: at, SyncVersion: NextVersion(0)}
}

// faces renders the front and back of a note's forward card. The reversed
// card shows them the other way round.
func (s *NoteService) faces(nt *models.NoteType, fields map[string]string) (front, back string, err error) {
	if front, err = s.renderer.Render(nt.FrontTemplate, fields); err != nil {
		return "", "", &ValidationError{Field: "frontTemplate", Reason: err.Error()}
	}
	if back, err = s.renderer.Render(nt.BackTemplate, fields); err != nil {
		return "", "", &ValidationError{Field: "backTemplate", Reason: err.Error()}
	}
	return front, back, nil
}

func checkFieldNames(fieldTypes []*models.NoteFieldType, fields map[string]string) error {
	known := make(map[string]struct{}, len(fieldTypes))
	for _, ft := range fieldTypes {
		known[ft.Name] = struct{}{}
	}
	for name := range fields {
		if _, ok := known[name]; !ok {
			return &ValidationError{Field: "fields." + name, Reason: "not a field of the note type"}
		}
	}
	return nil
}

// CreateNote stores a note in deckID with one value per field type of the
// note type, and one card, or two for a reversible note type.
func (s *NoteService) CreateNote(ctx context.Context, userID, deckID, noteTypeID string, fields map[string]string) (bundle *NoteBundle, err error) {
	ctx, span := tracer.Start(ctx, "NoteService.CreateNote", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("deck.id", deckID),
	))
	defer func() { endSpan(span, err) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rm := s.repomanager

		deck, err := rm.Decks(tx).LockState(ctx, userID, deckID)
		if err != nil {
			return err
		}
		if !live(deck) {
			return fmt.Errorf("deck %s: %w", deckID, common.ErrorNotFound)
		}
		nt, err := rm.NoteTypes(tx).Get(ctx, userID, noteTypeID)
		if err != nil {
			return fmt.Errorf("note type %s: %w", noteTypeID, err)
		}
		fieldTypes, err := rm.NoteFieldTypes(tx).ListByNoteType(ctx, noteTypeID)
		if err != nil {
			return err
		}
		if err := checkFieldNames(fieldTypes, fields); err != nil {
			return err
		}

		at := s.now()
		b := &NoteBundle{Note: &models.Note{Envelope: s.envelope(at), DeckID: deckID, NoteTypeID: noteTypeID}}
		if _, err := rm.Notes(tx).Insert(ctx, b.Note); err != nil {
			return err
		}

		for _, ft := range fieldTypes {
			v := &models.NoteFieldValue{Envelope: s.envelope(at), NoteID: b.Note.ID, FieldTypeID: ft.ID, Value: fields[ft.Name]}
			if _, err := rm.NoteFieldValues(tx).Insert(ctx, v); err != nil {
				return err
			}
			b.Values = append(b.Values, v)
		}

		front, back, err := s.faces(nt, fields)
		if err != nil {
			return err
		}
		b.Cards = append(b.Cards, s.newCard(at, b.Note, front, back, false))
		if nt.IsReversible {
			b.Cards = append(b.Cards, s.newCard(at, b.Note, back, front, true))
		}
		for _, c := range b.Cards {
			if _, err := rm.Cards(tx).Insert(ctx, c); err != nil {
				return err
			}
		}

		bundle = b
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.logger.Info(ctx, "note created", "user_id", userID, "note_id", bundle.Note.ID, "cards", len(bundle.Cards))
	return bundle, nil
}

func (s *NoteService) newCard(at time.Time, n *models.Note, front, back string, reversed bool) *models.Card {
	return &models.Card{
		Envelope:   s.envelope(at),
		Schedule:   models.Schedule{State: models.CardStateNew, Due: at},
		NoteID:     n.ID,
		DeckID:     n.DeckID,
		Front:      front,
		Back:       back,
		IsReversed: reversed,
	}
}

// UpdateNote rewrites the given field values and re-renders the note's
// cards. Fields not named keep their value.
func (s *NoteService) UpdateNote(ctx context.Context, userID, noteID string, fields map[string]string) (bundle *NoteBundle, err error) {
	ctx, span := tracer.Start(ctx, "NoteService.UpdateNote", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("note.id", noteID),
	))
	defer func() { endSpan(span, err) }()

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		rm := s.repomanager
		notes := rm.Notes(tx)
		values := rm.NoteFieldValues(tx)
		cards := rm.Cards(tx)

		state, err := notes.LockState(ctx, userID, noteID)
		if err != nil {
			return err
		}
		if !live(state) {
			return fmt.Errorf("note %s: %w", noteID, common.ErrorNotFound)
		}
		note, err := notes.Get(ctx, userID, noteID)
		if err != nil {
			return err
		}
		nt, err := rm.NoteTypes(tx).Get(ctx, userID, note.NoteTypeID)
		if err != nil {
			return fmt.Errorf("note type %s: %w", note.NoteTypeID, err)
		}
		fieldTypes, err := rm.NoteFieldTypes(tx).ListByNoteType(ctx, note.NoteTypeID)
		if err != nil {
			return err
		}
		if err := checkFieldNames(fieldTypes, fields); err != nil {
			return err
		}
		current, err := values.ListByNote(ctx, noteID)
		if err != nil {
			return err
		}
		byFieldType := make(map[string]*models.NoteFieldValue, len(current))
		for _, v := range current {
			byFieldType[v.FieldTypeID] = v
		}

		at := s.now()
		merged := make(map[string]string, len(fieldTypes))
		for _, ft := range fieldTypes {
			v, exists := byFieldType[ft.ID]
			value, changed := fields[ft.Name]
			switch {
			case exists && changed && v.Value != value:
				if err := values.SetValue(ctx, v.ID, value, at); err != nil {
					return err
				}
			case !exists:
				nv := &models.NoteFieldValue{Envelope: s.envelope(at), NoteID: noteID, FieldTypeID: ft.ID, Value: value}
				if _, err := values.Insert(ctx, nv); err != nil {
					return err
				}
			case !changed:
				value = v.Value
			}
			merged[ft.Name] = value
		}

		front, back, err := s.faces(nt, merged)
		if err != nil {
			return err
		}
		noteCards, err := cards.ListByNote(ctx, noteID)
		if err != nil {
			return err
		}
		for _, c := range noteCards {
			f, b := front, back
			if c.IsReversed {
				f, b = back, front
			}
			if c.Front == f && c.Back == b {
				continue
			}
			if err := cards.SetFaces(ctx, c.ID, f, b, at); err != nil {
				return err
			}
		}
		if err := notes.Touch(ctx, noteID, at); err != nil {
			return err
		}

		// re-read so the bundle carries the bumped versions
		b := &NoteBundle{}
		if b.Note, err = notes.Get(ctx, userID, noteID); err != nil {
			return err
		}
		if b.Values, err = values.ListByNote(ctx, noteID); err != nil {
			return err
		}
		if b.Cards, err = cards.ListByNote(ctx, noteID); err != nil {
			return err
		}
		bundle = b
		return nil
	})
	if err != nil {
		return nil, storageError(err)
	}

	s.logger.Info(ctx, "note updated", "user_id", userID, "note_id", noteID)
	return bundle, nil
}
