// Package models defines server-side data models persisted in the database
// and exchanged with sync clients.
package models

import "time"

// EntityType names a syncable table.
type EntityType string

const (
	EntityDeck           EntityType = "deck"
	EntityNoteType       EntityType = "note_type"
	EntityNoteFieldType  EntityType = "note_field_type"
	EntityNote           EntityType = "note"
	EntityNoteFieldValue EntityType = "note_field_value"
	EntityCard           EntityType = "card"
	EntityReviewLog      EntityType = "review_log"
	EntityDocument       EntityType = "document"
)

// Valid reports whether t names a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityDeck, EntityNoteType, EntityNoteFieldType, EntityNote,
		EntityNoteFieldValue, EntityCard, EntityReviewLog, EntityDocument:
		return true
	}
	return false
}

// Envelope carries the fields every syncable row shares.
type Envelope struct {
	// ID is a UUID, immutable once assigned.
	ID string `json:"id"`
	// CreatedAt is set by the first write and never changes.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt is the last accepted write; it never goes backwards.
	UpdatedAt time.Time `json:"updatedAt"`
	// DeletedAt marks a tombstone. Once set it is never cleared.
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	// SyncVersion grows by one with every accepted write to the row.
	SyncVersion int64 `json:"syncVersion"`
}

// Env gives generic sync code access to the envelope of any entity.
func (e *Envelope) Env() *Envelope { return e }

// Deleted reports whether the row is a tombstone.
func (e *Envelope) Deleted() bool { return e.DeletedAt != nil }

// Record is implemented by pointers to every entity type.
type Record interface {
	Env() *Envelope
}

// RowState is the locked server-side snapshot of a row, as seen by the
// caller, that conflict resolution works from.
type RowState struct {
	UpdatedAt   time.Time
	SyncVersion int64
	Deleted     bool
	// Owned is false when the row exists but belongs to another user.
	Owned bool
}

// ParentState is the locked view of the rows a pushed record references.
type ParentState struct {
	// Owned is false when a parent is missing or belongs to another user.
	Owned bool
	// DeletedAt is the earliest tombstone among the parents, nil while they
	// are all live.
	DeletedAt *time.Time
}
