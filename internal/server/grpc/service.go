package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "decksync.v1.SyncService"

// Full method names, as seen by interceptors.
const (
	PingMethod                = "/" + serviceName + "/Ping"
	PushMethod                = "/" + serviceName + "/Push"
	PullMethod                = "/" + serviceName + "/Pull"
	CreateNoteMethod          = "/" + serviceName + "/CreateNote"
	UpdateNoteMethod          = "/" + serviceName + "/UpdateNote"
	DeleteNoteMethod          = "/" + serviceName + "/DeleteNote"
	DeleteNoteFieldTypeMethod = "/" + serviceName + "/DeleteNoteFieldType"
	DeleteNoteTypeMethod      = "/" + serviceName + "/DeleteNoteType"
	DeleteDeckMethod          = "/" + serviceName + "/DeleteDeck"
	MarkUploadedMethod        = "/" + serviceName + "/MarkUploaded"
)

// SyncServiceServer is the server API of decksync.v1.SyncService.
type SyncServiceServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Push(context.Context, *PushRequest) (*PushResponse, error)
	Pull(context.Context, *PullRequest) (*PullResponse, error)
	CreateNote(context.Context, *CreateNoteRequest) (*NoteResponse, error)
	UpdateNote(context.Context, *UpdateNoteRequest) (*NoteResponse, error)
	DeleteNote(context.Context, *DeleteRequest) (*DeleteResponse, error)
	DeleteNoteFieldType(context.Context, *DeleteRequest) (*DeleteResponse, error)
	DeleteNoteType(context.Context, *DeleteRequest) (*DeleteResponse, error)
	DeleteDeck(context.Context, *DeleteRequest) (*DeleteResponse, error)
	MarkUploaded(context.Context, *MarkUploadedRequest) (*MarkUploadedResponse, error)
}

func RegisterSyncServiceServer(s grpc.ServiceRegistrar, srv SyncServiceServer) {
	s.RegisterService(&SyncService_ServiceDesc, srv)
}

// unary adapts a typed handler to the grpc.MethodDesc signature.
func unary[Req, Resp any](fullMethod string, call func(SyncServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SyncServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SyncServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var SyncService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unary(PingMethod, SyncServiceServer.Ping)},
		{MethodName: "Push", Handler: unary(PushMethod, SyncServiceServer.Push)},
		{MethodName: "Pull", Handler: unary(PullMethod, SyncServiceServer.Pull)},
		{MethodName: "CreateNote", Handler: unary(CreateNoteMethod, SyncServiceServer.CreateNote)},
		{MethodName: "UpdateNote", Handler: unary(UpdateNoteMethod, SyncServiceServer.UpdateNote)},
		{MethodName: "DeleteNote", Handler: unary(DeleteNoteMethod, SyncServiceServer.DeleteNote)},
		{MethodName: "DeleteNoteFieldType", Handler: unary(DeleteNoteFieldTypeMethod, SyncServiceServer.DeleteNoteFieldType)},
		{MethodName: "DeleteNoteType", Handler: unary(DeleteNoteTypeMethod, SyncServiceServer.DeleteNoteType)},
		{MethodName: "DeleteDeck", Handler: unary(DeleteDeckMethod, SyncServiceServer.DeleteDeck)},
		{MethodName: "MarkUploaded", Handler: unary(MarkUploadedMethod, SyncServiceServer.MarkUploaded)},
	},
	Metadata: "decksync/v1/sync.proto",
}

// SyncServiceClient calls decksync.v1.SyncService over the JSON codec.
type SyncServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSyncServiceClient(cc grpc.ClientConnInterface) *SyncServiceClient {
	return &SyncServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SyncServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, PingMethod, in, opts)
}

func (c *SyncServiceClient) Push(ctx context.Context, in *PushRequest, opts ...grpc.CallOption) (*PushResponse, error) {
	return invoke[PushResponse](ctx, c.cc, PushMethod, in, opts)
}

func (c *SyncServiceClient) Pull(ctx context.Context, in *PullRequest, opts ...grpc.CallOption) (*PullResponse, error) {
	return invoke[PullResponse](ctx, c.cc, PullMethod, in, opts)
}

func (c *SyncServiceClient) CreateNote(ctx context.Context, in *CreateNoteRequest, opts ...grpc.CallOption) (*NoteResponse, error) {
	return invoke[NoteResponse](ctx, c.cc, CreateNoteMethod, in, opts)
}

func (c *SyncServiceClient) UpdateNote(ctx context.Context, in *UpdateNoteRequest, opts ...grpc.CallOption) (*NoteResponse, error) {
	return invoke[NoteResponse](ctx, c.cc, UpdateNoteMethod, in, opts)
}

func (c *SyncServiceClient) DeleteNote(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	return invoke[DeleteResponse](ctx, c.cc, DeleteNoteMethod, in, opts)
}

func (c *SyncServiceClient) DeleteNoteFieldType(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	return invoke[DeleteResponse](ctx, c.cc, DeleteNoteFieldTypeMethod, in, opts)
}

func (c *SyncServiceClient) DeleteNoteType(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	return invoke[DeleteResponse](ctx, c.cc, DeleteNoteTypeMethod, in, opts)
}

func (c *SyncServiceClient) DeleteDeck(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	return invoke[DeleteResponse](ctx, c.cc, DeleteDeckMethod, in, opts)
}

func (c *SyncServiceClient) MarkUploaded(ctx context.Context, in *MarkUploadedRequest, opts ...grpc.CallOption) (*MarkUploadedResponse, error) {
	return invoke[MarkUploadedResponse](ctx, c.cc, MarkUploadedMethod, in, opts)
}
