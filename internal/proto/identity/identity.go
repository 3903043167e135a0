// Package identity describes the Identity gRPC service. SignIn takes
// {"email", "password"} and answers {"uid", "email", "admin"}.
package identity

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "tindecisos.identity.v1.Identity"

const SignInMethod = "/" + ServiceName + "/SignIn"

type IdentityServer interface {
	SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type UnimplementedIdentityServer struct{}

func (UnimplementedIdentityServer) SignIn(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SignIn not implemented")
}

func RegisterIdentityServer(s grpc.ServiceRegistrar, srv IdentityServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func signInHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IdentityServer).SignIn(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SignInMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(IdentityServer).SignIn(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IdentityServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SignIn", Handler: signInHandler},
	},
	Metadata: "tindecisos/identity/v1/identity.proto",
}

type IdentityClient interface {
	SignIn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type identityClient struct {
	cc grpc.ClientConnInterface
}

func NewIdentityClient(cc grpc.ClientConnInterface) IdentityClient {
	return &identityClient{cc: cc}
}

func (c *identityClient) SignIn(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SignInMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// SignInRequest builds the request message.
func SignInRequest(email, password string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"email":    structpb.NewStringValue(email),
		"password": structpb.NewStringValue(password),
	}}
}

// Credentials reads a SignIn request.
func Credentials(req *structpb.Struct) (email, password string) {
	f := req.GetFields()
	return f["email"].GetStringValue(), f["password"].GetStringValue()
}

// UserMessage builds the SignIn response.
func UserMessage(uid, email string, admin bool) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"uid":   structpb.NewStringValue(uid),
		"email": structpb.NewStringValue(email),
		"admin": structpb.NewBoolValue(admin),
	}}
}

// ParseUser reads a SignIn response.
func ParseUser(msg *structpb.Struct) (uid, email string, admin bool) {
	f := msg.GetFields()
	return f["uid"].GetStringValue(), f["email"].GetStringValue(), f["admin"].GetBoolValue()
}
