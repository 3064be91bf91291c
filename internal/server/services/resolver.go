package services

import (
	"time"

	"github.com/dmitrijs2005/decksync/internal/server/models"
)

// Decision is the outcome of comparing a pushed record with the stored row.
type Decision int

const (
	// DecisionInsert creates a row that does not exist yet.
	DecisionInsert Decision = iota
	// DecisionApply overwrites the stored row with the client copy.
	DecisionApply
	// DecisionConflict keeps the stored row and reports the id.
	DecisionConflict
	// DecisionReplay acknowledges an append-only row that was already stored.
	DecisionReplay
	// DecisionSkip drops a record the caller may not write.
	DecisionSkip
)

func (d Decision) String() string {
	switch d {
	case DecisionInsert:
		return "insert"
	case DecisionApply:
		return "apply"
	case DecisionConflict:
		return "conflict"
	case DecisionReplay:
		return "replay"
	case DecisionSkip:
		return "skip"
	}
	return "unknown"
}

// appendOnly entity types are written once and never updated by push.
func appendOnly(kind models.EntityType) bool {
	return kind == models.EntityReviewLog
}

// Resolve applies last-write-wins against the locked server state. Equal
// timestamps keep the server copy.
func Resolve(kind models.EntityType, incoming time.Time, state *models.RowState) Decision {
	switch {
	case state == nil:
		return DecisionInsert
	case !state.Owned:
		return DecisionSkip
	case appendOnly(kind):
		return DecisionReplay
	case incoming.After(state.UpdatedAt):
		return DecisionApply
	default:
		return DecisionConflict
	}
}
