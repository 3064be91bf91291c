package grpc

import (
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/dmitrijs2005/decksync/internal/server/services"
)

type PingRequest struct{}

type PingResponse struct {
	Status string `json:"status"`
}

type PushRequest struct {
	Batch *models.PushBatch `json:"batch"`
}

type PushResponse struct {
	Result *models.PushResult `json:"result"`
}

type PullRequest struct {
	LastSyncVersion int64 `json:"lastSyncVersion"`
}

type PullResponse struct {
	Result *models.PullResult `json:"result"`
}

type CreateNoteRequest struct {
	DeckID     string            `json:"deckId"`
	NoteTypeID string            `json:"noteTypeId"`
	Fields     map[string]string `json:"fields"`
}

type UpdateNoteRequest struct {
	NoteID string            `json:"noteId"`
	Fields map[string]string `json:"fields"`
}

type NoteResponse struct {
	Note *services.NoteBundle `json:"note"`
}

// DeleteRequest addresses any cascade delete. Force only applies to note
// field types.
type DeleteRequest struct {
	ID    string `json:"id"`
	Force bool   `json:"force,omitempty"`
}

// DeleteResponse reports whether the call tombstoned a live row.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type MarkUploadedRequest struct {
	DocumentID string `json:"documentId"`
}

type MarkUploadedResponse struct {
	Document *models.Document `json:"document"`
}
