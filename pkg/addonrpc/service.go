// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package addonrpc defines the gRPC service spoken between the addon host and
// out-of-process addons.
//
// Messages are well-known protobuf types so the service needs no generated
// code: the descriptor travels as a StringValue holding its JSON encoding,
// invocations and events as Structs.
package addonrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "addonhost.addon.v1.Addon"

// Full method names.
const (
	DescribeMethod = "/" + ServiceName + "/Describe"
	InvokeMethod   = "/" + ServiceName + "/Invoke"
	EventsMethod   = "/" + ServiceName + "/Events"
	ShutdownMethod = "/" + ServiceName + "/Shutdown"
)

// EventStream is the server side of the Events stream.
type EventStream = grpc.ServerStreamingServer[structpb.Struct]

// EventReceiver is the client side of the Events stream.
type EventReceiver = grpc.ServerStreamingClient[structpb.Struct]

// AddonServer is implemented by addon processes.
type AddonServer interface {
	// Describe returns the JSON descriptor.
	Describe(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	// Invoke calls one capability. Failures raised by the addon travel in
	// the response; a gRPC error means the call never completed.
	Invoke(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Events streams emitted events until the addon shuts down or the host
	// cancels the stream.
	Events(*emptypb.Empty, EventStream) error
	// Shutdown runs the addon's unload hook.
	Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
}

// AddonClient is the host side of the service.
type AddonClient interface {
	Describe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Events(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (EventReceiver, error)
	Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

// UnimplementedAddonServer answers every method with codes.Unimplemented.
type UnimplementedAddonServer struct{}

// Describe implements AddonServer.
func (UnimplementedAddonServer) Describe(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Describe not implemented")
}

// Invoke implements AddonServer.
func (UnimplementedAddonServer) Invoke(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Invoke not implemented")
}

// Events implements AddonServer.
func (UnimplementedAddonServer) Events(*emptypb.Empty, EventStream) error {
	return status.Error(codes.Unimplemented, "method Events not implemented")
}

// Shutdown implements AddonServer.
func (UnimplementedAddonServer) Shutdown(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method Shutdown not implemented")
}

// RegisterAddonServer registers srv on s.
func RegisterAddonServer(s grpc.ServiceRegistrar, srv AddonServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the Addon service to grpc.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AddonServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Describe", Handler: describeHandler},
		{MethodName: "Invoke", Handler: invokeHandler},
		{MethodName: "Shutdown", Handler: shutdownHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
	Metadata: "addonhost/addon/v1/addon.proto",
}

func describeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AddonServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DescribeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AddonServer).Describe(ctx, req.(*emptypb.Empty))
	})
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AddonServer).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: InvokeMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AddonServer).Invoke(ctx, req.(*structpb.Struct))
	})
}

func shutdownHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AddonServer).Shutdown(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ShutdownMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(AddonServer).Shutdown(ctx, req.(*emptypb.Empty))
	})
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(AddonServer).Events(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

type addonClient struct {
	cc grpc.ClientConnInterface
}

// NewAddonClient creates a client on cc.
func NewAddonClient(cc grpc.ClientConnInterface) AddonClient {
	return &addonClient{cc: cc}
}

func (c *addonClient) Describe(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, DescribeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *addonClient) Invoke(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, InvokeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *addonClient) Events(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (EventReceiver, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], EventsMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *addonClient) Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, ShutdownMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
