package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

/*
 * Wire contract for mdcollate.v1.AggregationService.
 *
 * Requests and responses are google.protobuf.Struct, so the service needs no
 * generated code:
 *
 *   Aggregate  {schema: {...}, documents: [{path, data} | {path, content}]}
 *              -> {run_id, mode, documents, order, outputs, warnings}
 *   GetRun     {run_id} -> {run_id, mode, documents, outputs, warnings, created_at, result}
 */

const (
	ServiceName     = "mdcollate.v1.AggregationService"
	AggregateMethod = "/" + ServiceName + "/Aggregate"
	GetRunMethod    = "/" + ServiceName + "/GetRun"
)

// AggregationServer is the server API for the aggregation service.
type AggregationServer interface {
	Aggregate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes the aggregation service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AggregationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Aggregate", Handler: unaryHandler(AggregateMethod, AggregationServer.Aggregate)},
		{MethodName: "GetRun", Handler: unaryHandler(GetRunMethod, AggregationServer.GetRun)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mdcollate/v1/aggregation.proto",
}

// RegisterAggregationServer registers srv on s.
func RegisterAggregationServer(s grpc.ServiceRegistrar, srv AggregationServer) {
	s.RegisterService(&ServiceDesc, srv)
}

type unaryMethod func(AggregationServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryMethod) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AggregationServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AggregationServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls the aggregation service over cc.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Aggregate runs a schema against documents on the server.
func (c *Client) Aggregate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, AggregateMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// GetRun fetches a persisted run.
func (c *Client) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetRunMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
