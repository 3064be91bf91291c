package grpc

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/dmitrijs2005/decksync/internal/server/services"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"validation", &services.ValidationError{Field: "f", Reason: "r"}, codes.InvalidArgument},
		{"integrity", &services.IntegrityError{Entity: models.EntityNoteType, ID: "t", Dependents: 1}, codes.FailedPrecondition},
		{"constraint", &services.ConstraintError{Constraint: "note_field_types_order_excl", Code: "23P01"}, codes.FailedPrecondition},
		{"not found", fmt.Errorf("deck: %w", common.ErrorNotFound), codes.NotFound},
		{"storage", fmt.Errorf("%w: boom", common.ErrStorage), codes.Unavailable},
		{"canceled", context.Canceled, codes.Canceled},
		{"other", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, status.Code(toStatus(tt.err)))
		})
	}
}

func TestHandlers_RejectMissingCaller(t *testing.T) {
	s := newTestServer("secret")

	_, err := s.Push(context.Background(), &PushRequest{})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = s.DeleteDeck(context.Background(), &DeleteRequest{ID: "d"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
