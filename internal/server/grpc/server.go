package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/decksync/internal/logging"
	"github.com/dmitrijs2005/decksync/internal/server/models"
	"github.com/dmitrijs2005/decksync/internal/server/services"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Syncer is the push/pull side of the API.
type Syncer interface {
	Push(ctx context.Context, userID string, batch *models.PushBatch) (*models.PushResult, error)
	Pull(ctx context.Context, userID string, lastSyncVersion int64) (*models.PullResult, error)
	MarkUploaded(ctx context.Context, userID, documentID string) (*models.Document, error)
}

// NoteAuthor creates and edits notes on the server.
type NoteAuthor interface {
	CreateNote(ctx context.Context, userID, deckID, noteTypeID string, fields map[string]string) (*services.NoteBundle, error)
	UpdateNote(ctx context.Context, userID, noteID string, fields map[string]string) (*services.NoteBundle, error)
}

// Cascader runs the cascading soft deletes.
type Cascader interface {
	DeleteNote(ctx context.Context, userID, id string) (bool, error)
	DeleteNoteFieldType(ctx context.Context, userID, id string, force bool) (bool, error)
	DeleteNoteType(ctx context.Context, userID, id string) (bool, error)
	DeleteDeck(ctx context.Context, userID, id string) (bool, error)
}

type GRPCServer struct {
	address   string
	sync      Syncer
	notes     NoteAuthor
	cascade   Cascader
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, sync Syncer, notes NoteAuthor, cascade Cascader, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		sync:      sync,
		notes:     notes,
		cascade:   cascade,
		jwtSecret: []byte(secretKey),
	}
}

// newServer builds the grpc.Server with tracing, auth and the health service.
func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor),
	)

	RegisterSyncServiceServer(srv, s)

	hs := health.NewServer()
	hs.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)

	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
