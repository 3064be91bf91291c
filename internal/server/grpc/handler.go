package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/decksync/internal/common"
	"github.com/dmitrijs2005/decksync/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors onto gRPC codes. Store details are not sent
// to the caller.
func toStatus(err error) error {
	var integrity *services.IntegrityError
	switch {
	case errors.Is(err, common.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.As(err, &integrity):
		return status.Error(codes.FailedPrecondition, integrity.Error())
	case errors.Is(err, common.ErrConstraint):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, common.ErrStorage):
		return status.Error(codes.Unavailable, "storage unavailable, retry")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GRPCServer) caller(ctx context.Context) (string, error) {
	userID, ok := userIDFromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return userID, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *PingRequest) (*PingResponse, error) {
	return &PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) Push(ctx context.Context, req *PushRequest) (*PushResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.sync.Push(ctx, userID, req.Batch)
	if err != nil {
		s.logger.Error(ctx, "push failed", "user_id", userID, "error", err)
		return nil, toStatus(err)
	}

	return &PushResponse{Result: result}, nil
}

func (s *GRPCServer) Pull(ctx context.Context, req *PullRequest) (*PullResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.sync.Pull(ctx, userID, req.LastSyncVersion)
	if err != nil {
		s.logger.Error(ctx, "pull failed", "user_id", userID, "error", err)
		return nil, toStatus(err)
	}

	return &PullResponse{Result: result}, nil
}

func (s *GRPCServer) CreateNote(ctx context.Context, req *CreateNoteRequest) (*NoteResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	bundle, err := s.notes.CreateNote(ctx, userID, req.DeckID, req.NoteTypeID, req.Fields)
	if err != nil {
		return nil, toStatus(err)
	}

	return &NoteResponse{Note: bundle}, nil
}

func (s *GRPCServer) UpdateNote(ctx context.Context, req *UpdateNoteRequest) (*NoteResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	bundle, err := s.notes.UpdateNote(ctx, userID, req.NoteID, req.Fields)
	if err != nil {
		return nil, toStatus(err)
	}

	return &NoteResponse{Note: bundle}, nil
}

func (s *GRPCServer) remove(ctx context.Context, del func(userID string) (bool, error)) (*DeleteResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	deleted, err := del(userID)
	if err != nil {
		return nil, toStatus(err)
	}

	return &DeleteResponse{Deleted: deleted}, nil
}

func (s *GRPCServer) DeleteNote(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	return s.remove(ctx, func(userID string) (bool, error) {
		return s.cascade.DeleteNote(ctx, userID, req.ID)
	})
}

func (s *GRPCServer) DeleteNoteFieldType(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	return s.remove(ctx, func(userID string) (bool, error) {
		return s.cascade.DeleteNoteFieldType(ctx, userID, req.ID, req.Force)
	})
}

func (s *GRPCServer) DeleteNoteType(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	return s.remove(ctx, func(userID string) (bool, error) {
		return s.cascade.DeleteNoteType(ctx, userID, req.ID)
	})
}

func (s *GRPCServer) DeleteDeck(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	return s.remove(ctx, func(userID string) (bool, error) {
		return s.cascade.DeleteDeck(ctx, userID, req.ID)
	})
}

func (s *GRPCServer) MarkUploaded(ctx context.Context, req *MarkUploadedRequest) (*MarkUploadedResponse, error) {
	userID, err := s.caller(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := s.sync.MarkUploaded(ctx, userID, req.DocumentID)
	if err != nil {
		return nil, toStatus(err)
	}

	return &MarkUploadedResponse{Document: doc}, nil
}
