// Package slowpeerv1 describes the mirador.slowpeers.v1.SlowPeerService gRPC
// service. Messages are protobuf well-known types so no generated code is
// required on either side:
//
//	AddReports            Struct{reportingNode, slowPeers{node: metrics}} -> Int32Value
//	GetReportsForNode     StringValue                                    -> ListValue
//	GetReportsForAllNodes Empty                                          -> Struct{node: ListValue}
//	GetSlowNodes          Struct{limit?}                                 -> ListValue of strings
//	GetSnapshot           Empty                                          -> StringValue
//	SetMaxNodesToReport   Int32Value                                     -> Empty
package slowpeerv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "mirador.slowpeers.v1.SlowPeerService"

const (
	AddReportsMethod            = "/" + ServiceName + "/AddReports"
	GetReportsForNodeMethod     = "/" + ServiceName + "/GetReportsForNode"
	GetReportsForAllNodesMethod = "/" + ServiceName + "/GetReportsForAllNodes"
	GetSlowNodesMethod          = "/" + ServiceName + "/GetSlowNodes"
	GetSnapshotMethod           = "/" + ServiceName + "/GetSnapshot"
	SetMaxNodesToReportMethod   = "/" + ServiceName + "/SetMaxNodesToReport"
)

// SlowPeerServiceServer is the server API for SlowPeerService.
type SlowPeerServiceServer interface {
	AddReports(context.Context, *structpb.Struct) (*wrapperspb.Int32Value, error)
	GetReportsForNode(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error)
	GetReportsForAllNodes(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetSlowNodes(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	GetSnapshot(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	SetMaxNodesToReport(context.Context, *wrapperspb.Int32Value) (*emptypb.Empty, error)
}

// UnimplementedSlowPeerServiceServer can be embedded to satisfy the interface
// with methods that return codes.Unimplemented.
type UnimplementedSlowPeerServiceServer struct{}

func (UnimplementedSlowPeerServiceServer) AddReports(context.Context, *structpb.Struct) (*wrapperspb.Int32Value, error) {
	return nil, status.Error(codes.Unimplemented, "method AddReports not implemented")
}

func (UnimplementedSlowPeerServiceServer) GetReportsForNode(context.Context, *wrapperspb.StringValue) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetReportsForNode not implemented")
}

func (UnimplementedSlowPeerServiceServer) GetReportsForAllNodes(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetReportsForAllNodes not implemented")
}

func (UnimplementedSlowPeerServiceServer) GetSlowNodes(context.Context, *structpb.Struct) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSlowNodes not implemented")
}

func (UnimplementedSlowPeerServiceServer) GetSnapshot(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSnapshot not implemented")
}

func (UnimplementedSlowPeerServiceServer) SetMaxNodesToReport(context.Context, *wrapperspb.Int32Value) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method SetMaxNodesToReport not implemented")
}

// RegisterSlowPeerServiceServer attaches srv to s.
func RegisterSlowPeerServiceServer(s grpc.ServiceRegistrar, srv SlowPeerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// unary adapts a typed method into a grpc.MethodDesc handler.
func unary[Req any, Resp any](fullMethod string, call func(SlowPeerServiceServer, context.Context, *Req) (Resp, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SlowPeerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SlowPeerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc is the grpc.ServiceDesc for SlowPeerService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SlowPeerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddReports", Handler: unary(AddReportsMethod, SlowPeerServiceServer.AddReports)},
		{MethodName: "GetReportsForNode", Handler: unary(GetReportsForNodeMethod, SlowPeerServiceServer.GetReportsForNode)},
		{MethodName: "GetReportsForAllNodes", Handler: unary(GetReportsForAllNodesMethod, SlowPeerServiceServer.GetReportsForAllNodes)},
		{MethodName: "GetSlowNodes", Handler: unary(GetSlowNodesMethod, SlowPeerServiceServer.GetSlowNodes)},
		{MethodName: "GetSnapshot", Handler: unary(GetSnapshotMethod, SlowPeerServiceServer.GetSnapshot)},
		{MethodName: "SetMaxNodesToReport", Handler: unary(SetMaxNodesToReportMethod, SlowPeerServiceServer.SetMaxNodesToReport)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/slowpeers/v1/slowpeers.proto",
}

// SlowPeerServiceClient is the client API for SlowPeerService.
type SlowPeerServiceClient interface {
	AddReports(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int32Value, error)
	GetReportsForNode(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error)
	GetReportsForAllNodes(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetSlowNodes(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error)
	GetSnapshot(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	SetMaxNodesToReport(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*emptypb.Empty, error)
}

type slowPeerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSlowPeerServiceClient wraps cc.
func NewSlowPeerServiceClient(cc grpc.ClientConnInterface) SlowPeerServiceClient {
	return &slowPeerServiceClient{cc: cc}
}

func (c *slowPeerServiceClient) AddReports(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int32Value, error) {
	out := new(wrapperspb.Int32Value)
	if err := c.cc.Invoke(ctx, AddReportsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *slowPeerServiceClient) GetReportsForNode(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, GetReportsForNodeMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *slowPeerServiceClient) GetReportsForAllNodes(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetReportsForAllNodesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *slowPeerServiceClient) GetSlowNodes(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, GetSlowNodesMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *slowPeerServiceClient) GetSnapshot(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, GetSnapshotMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *slowPeerServiceClient) SetMaxNodesToReport(ctx context.Context, in *wrapperspb.Int32Value, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, SetMaxNodesToReportMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
