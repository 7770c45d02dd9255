package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "canonsig.v1.Signing"

const (
	methodSign      = "/" + ServiceName + "/Sign"
	methodVerify    = "/" + ServiceName + "/Verify"
	methodPublicKey = "/" + ServiceName + "/PublicKey"
)

// SigningServer is the server API for the Signing service.
//
// Messages are protobuf well-known wrapper types, so the service needs no
// generated code:
//
//	service Signing {
//	  rpc Sign(google.protobuf.BytesValue) returns (google.protobuf.BytesValue);
//	  rpc Verify(google.protobuf.BytesValue) returns (google.protobuf.StringValue);
//	  rpc PublicKey(google.protobuf.StringValue) returns (google.protobuf.BytesValue);
//	}
type SigningServer interface {
	Sign(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Verify(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error)
	PublicKey(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
}

// UnimplementedSigningServer can be embedded for forward compatibility.
type UnimplementedSigningServer struct{}

func (UnimplementedSigningServer) Sign(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Sign not implemented")
}

func (UnimplementedSigningServer) Verify(context.Context, *wrapperspb.BytesValue) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Verify not implemented")
}

func (UnimplementedSigningServer) PublicKey(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method PublicKey not implemented")
}

// RegisterSigningServer registers srv on a gRPC server.
func RegisterSigningServer(s grpc.ServiceRegistrar, srv SigningServer) {
	s.RegisterService(&SigningServiceDesc, srv)
}

// SigningClient is the client API for the Signing service.
type SigningClient interface {
	Sign(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Verify(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	PublicKey(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
}

type signingClient struct{ cc grpc.ClientConnInterface }

// NewSigningClient returns a SigningClient over cc.
func NewSigningClient(cc grpc.ClientConnInterface) SigningClient {
	return &signingClient{cc: cc}
}

func (c *signingClient) Sign(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodSign, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *signingClient) Verify(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodVerify, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *signingClient) PublicKey(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodPublicKey, in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

func signHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(SigningServer).Sign(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodSign}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SigningServer).Sign(ctx, req.(*wrapperspb.BytesValue))
	}

	return interceptor(ctx, in, info, handler)
}

func verifyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(SigningServer).Verify(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodVerify}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SigningServer).Verify(ctx, req.(*wrapperspb.BytesValue))
	}

	return interceptor(ctx, in, info, handler)
}

func publicKeyHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}

	if interceptor == nil {
		return srv.(SigningServer).PublicKey(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodPublicKey}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SigningServer).PublicKey(ctx, req.(*wrapperspb.StringValue))
	}

	return interceptor(ctx, in, info, handler)
}

// SigningServiceDesc is the grpc.ServiceDesc for the Signing service.
var SigningServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SigningServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sign", Handler: signHandler},
		{MethodName: "Verify", Handler: verifyHandler},
		{MethodName: "PublicKey", Handler: publicKeyHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "canonsig/v1/signing.proto",
}
