// Package documents describes the DocumentStore gRPC service. Messages are
// google.protobuf.Struct values so document bodies stay schemaless:
//
//	request  {"path": string, "data": object}
//	snapshot {"path": string, "exists": bool, "data": object}
package documents

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oggyb/tindecisos/internal/docstore"
)

const ServiceName = "tindecisos.documents.v1.DocumentStore"

const (
	GetMethod    = "/" + ServiceName + "/Get"
	SetMethod    = "/" + ServiceName + "/Set"
	UpdateMethod = "/" + ServiceName + "/Update"
	DeleteMethod = "/" + ServiceName + "/Delete"
	WatchMethod  = "/" + ServiceName + "/Watch"
)

// DocumentStoreServer is the server API for the DocumentStore service.
type DocumentStoreServer interface {
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Set(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Update(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Delete(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Watch(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error
}

// UnimplementedDocumentStoreServer can be embedded to get forward
// compatible implementations.
type UnimplementedDocumentStoreServer struct{}

func (UnimplementedDocumentStoreServer) Get(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Get not implemented")
}
func (UnimplementedDocumentStoreServer) Set(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Set not implemented")
}
func (UnimplementedDocumentStoreServer) Update(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Update not implemented")
}
func (UnimplementedDocumentStoreServer) Delete(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Delete not implemented")
}
func (UnimplementedDocumentStoreServer) Watch(*structpb.Struct, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Error(codes.Unimplemented, "method Watch not implemented")
}

func RegisterDocumentStoreServer(s grpc.ServiceRegistrar, srv DocumentStoreServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler[Resp any](method string, call func(DocumentStoreServer, context.Context, *structpb.Struct) (Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DocumentStoreServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DocumentStoreServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DocumentStoreServer).Watch(in, &grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

// ServiceDesc is the grpc.ServiceDesc for the DocumentStore service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DocumentStoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: unaryHandler(GetMethod, DocumentStoreServer.Get)},
		{MethodName: "Set", Handler: unaryHandler(SetMethod, DocumentStoreServer.Set)},
		{MethodName: "Update", Handler: unaryHandler(UpdateMethod, DocumentStoreServer.Update)},
		{MethodName: "Delete", Handler: unaryHandler(DeleteMethod, DocumentStoreServer.Delete)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "tindecisos/documents/v1/documents.proto",
}

// DocumentStoreClient is the client API for the DocumentStore service.
type DocumentStoreClient interface {
	Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Set(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Watch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type documentStoreClient struct {
	cc grpc.ClientConnInterface
}

func NewDocumentStoreClient(cc grpc.ClientConnInterface) DocumentStoreClient {
	return &documentStoreClient{cc: cc}
}

func (c *documentStoreClient) Get(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *documentStoreClient) Set(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, SetMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *documentStoreClient) Update(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, UpdateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *documentStoreClient) Delete(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, DeleteMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *documentStoreClient) Watch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], WatchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// PathRequest addresses a document without a body (Get, Delete, Watch).
func PathRequest(path string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"path": structpb.NewStringValue(path),
	}}
}

// WriteRequest carries a path and the fields to write. data is normalized
// through JSON first so typed slices and structs are accepted.
func WriteRequest(path string, data map[string]any) (*structpb.Struct, error) {
	plain, err := docstore.ToFields(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	body, err := structpb.NewStruct(plain)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	req := PathRequest(path)
	req.Fields["data"] = structpb.NewStructValue(body)
	return req, nil
}

// ParseRequest is the inverse of PathRequest and WriteRequest. data is nil
// when the request carries none.
func ParseRequest(req *structpb.Struct) (path string, data map[string]any, err error) {
	fields := req.GetFields()
	path = fields["path"].GetStringValue()
	if path == "" {
		return "", nil, fmt.Errorf("path is required")
	}
	if body := fields["data"].GetStructValue(); body != nil {
		data = body.AsMap()
	}
	return path, data, nil
}

// SnapshotMessage encodes a snapshot for the wire.
func SnapshotMessage(snap docstore.Snapshot) (*structpb.Struct, error) {
	msg := &structpb.Struct{Fields: map[string]*structpb.Value{
		"path":   structpb.NewStringValue(snap.Path),
		"exists": structpb.NewBoolValue(snap.Exists),
	}}
	if snap.Exists {
		plain, err := docstore.ToFields(snap.Data)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot %s: %w", snap.Path, err)
		}
		body, err := structpb.NewStruct(plain)
		if err != nil {
			return nil, fmt.Errorf("encode snapshot %s: %w", snap.Path, err)
		}
		msg.Fields["data"] = structpb.NewStructValue(body)
	}
	return msg, nil
}

// ParseSnapshot decodes a snapshot message.
func ParseSnapshot(msg *structpb.Struct) docstore.Snapshot {
	fields := msg.GetFields()
	snap := docstore.Snapshot{
		Path:   fields["path"].GetStringValue(),
		Exists: fields["exists"].GetBoolValue(),
	}
	if snap.Exists {
		snap.Data = fields["data"].GetStructValue().AsMap()
	}
	return snap
}
