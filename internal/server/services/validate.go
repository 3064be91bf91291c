package services

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/google/uuid"
)

// batchValidator collects the first shape error found in a push batch.
type batchValidator struct {
	err error
}

func (v *batchValidator) fail(field, format string, args ...any) {
	if v.err == nil {
		v.err = &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
	}
}

func (v *batchValidator) uuid(field, value string) {
	if _, err := uuid.Parse(value); err != nil {
		v.fail(field, "invalid uuid %q", value)
	}
}

func (v *batchValidator) timestamp(field string, t time.Time) {
	if t.IsZero() {
		v.fail(field, "is required")
	}
}

// envelopes checks the shared fields of one entity list and rejects
// duplicate ids within it.
func envelopes[R interface {
	comparable
	models.Record
}](v *batchValidator, list string, recs []R, check func(field string, rec R)) {
	var null R
	seen := make(map[string]struct{}, len(recs))
	for i, rec := range recs {
		field := fmt.Sprintf("%s[%d]", list, i)
		if rec == null {
			v.fail(field, "is null")
			continue
		}
		env := rec.Env()
		v.uuid(field+".id", env.ID)
		v.timestamp(field+".updatedAt", env.UpdatedAt)
		if env.DeletedAt != nil && env.DeletedAt.IsZero() {
			v.fail(field+".deletedAt", "is zero")
		}
		if _, dup := seen[env.ID]; dup {
			v.fail(field+".id", "duplicate id %s", env.ID)
		}
		seen[env.ID] = struct{}{}
		check(field, rec)
	}
}

// ValidateBatch rejects malformed push payloads before any store access.
func ValidateBatch(b *models.PushBatch) error {
	if b == nil {
		return &ValidationError{Field: "batch", Reason: "is required"}
	}

	v := &batchValidator{}

	envelopes(v, "decks", b.Decks, func(string, *models.Deck) {})
	envelopes(v, "noteTypes", b.NoteTypes, func(string, *models.NoteType) {})
	type fieldSlot struct {
		noteTypeID string
		order      int
	}
	slots := map[fieldSlot]string{}
	envelopes(v, "noteFieldTypes", b.NoteFieldTypes, func(f string, r *models.NoteFieldType) {
		v.uuid(f+".noteTypeId", r.NoteTypeID)
		if r.Order < 0 {
			v.fail(f+".order", "must not be negative")
		}
		if r.Deleted() {
			return
		}
		slot := fieldSlot{r.NoteTypeID, r.Order}
		if prev, ok := slots[slot]; ok {
			v.fail(f+".order", "duplicates %s", prev)
		}
		slots[slot] = f
	})
	envelopes(v, "notes", b.Notes, func(f string, r *models.Note) {
		v.uuid(f+".deckId", r.DeckID)
		v.uuid(f+".noteTypeId", r.NoteTypeID)
	})
	envelopes(v, "noteFieldValues", b.NoteFieldValues, func(f string, r *models.NoteFieldValue) {
		v.uuid(f+".noteId", r.NoteID)
		v.uuid(f+".fieldTypeId", r.FieldTypeID)
	})
	envelopes(v, "cards", b.Cards, func(f string, r *models.Card) {
		v.uuid(f+".noteId", r.NoteID)
		v.uuid(f+".deckId", r.DeckID)
		if !r.State.Valid() {
			v.fail(f+".state", "unknown card state %q", r.State)
		}
		if r.Reps < 0 || r.Lapses < 0 {
			v.fail(f+".reps", "counters must not be negative")
		}
	})
	envelopes(v, "reviewLogs", b.ReviewLogs, func(f string, r *models.ReviewLog) {
		v.uuid(f+".cardId", r.CardID)
		if !r.Rating.Valid() {
			v.fail(f+".rating", "must be between 1 and 4, got %d", r.Rating)
		}
		if !r.State.Valid() {
			v.fail(f+".state", "unknown card state %q", r.State)
		}
		v.timestamp(f+".reviewedAt", r.ReviewedAt)
	})
	attached := map[string]string{}
	envelopes(v, "documents", b.Documents, func(f string, r *models.Document) {
		v.uuid(f+".entityId", r.EntityID)
		if !r.EntityType.Valid() {
			v.fail(f+".entityType", "unknown entity type %q", r.EntityType)
		}
		if r.Deleted() {
			return
		}
		entity := string(r.EntityType) + "/" + r.EntityID
		if prev, ok := attached[entity]; ok {
			v.fail(f+".entityId", "duplicates %s", prev)
		}
		attached[entity] = f
	})

	return v.err
}
