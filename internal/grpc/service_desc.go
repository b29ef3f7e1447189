package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "inspection.dispatch.v1.DispatchService"

// Method names, usable with grpc.ClientConn.Invoke.
const (
	MethodAssign                    = "/" + ServiceName + "/Assign"
	MethodListAvailableWithDistance = "/" + ServiceName + "/ListAvailableWithDistance"
	MethodTransition                = "/" + ServiceName + "/Transition"
	MethodDeleteAssignment          = "/" + ServiceName + "/DeleteAssignment"
	MethodUpsertLocation            = "/" + ServiceName + "/UpsertLocation"
	MethodListActiveLocations       = "/" + ServiceName + "/ListActiveLocations"
	MethodGetAssignment             = "/" + ServiceName + "/GetAssignment"
	MethodListMyAssignments         = "/" + ServiceName + "/ListMyAssignments"
)

// DispatchServiceServer is the server API. Messages are google.protobuf.Struct
// so the service needs no generated code.
type DispatchServiceServer interface {
	Assign(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListAvailableWithDistance(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteAssignment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpsertLocation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListActiveLocations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAssignment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMyAssignments(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// RegisterDispatchServiceServer registers srv on s.
func RegisterDispatchServiceServer(s grpc.ServiceRegistrar, srv DispatchServiceServer) {
	s.RegisterService(&DispatchServiceDesc, srv)
}

type structMethod func(DispatchServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unaryHandler(fullMethod string, call structMethod) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(DispatchServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(DispatchServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// DispatchServiceDesc is the grpc.ServiceDesc for DispatchService.
var DispatchServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DispatchServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Assign", Handler: unaryHandler(MethodAssign, DispatchServiceServer.Assign)},
		{MethodName: "ListAvailableWithDistance", Handler: unaryHandler(MethodListAvailableWithDistance, DispatchServiceServer.ListAvailableWithDistance)},
		{MethodName: "Transition", Handler: unaryHandler(MethodTransition, DispatchServiceServer.Transition)},
		{MethodName: "DeleteAssignment", Handler: unaryHandler(MethodDeleteAssignment, DispatchServiceServer.DeleteAssignment)},
		{MethodName: "UpsertLocation", Handler: unaryHandler(MethodUpsertLocation, DispatchServiceServer.UpsertLocation)},
		{MethodName: "ListActiveLocations", Handler: unaryHandler(MethodListActiveLocations, DispatchServiceServer.ListActiveLocations)},
		{MethodName: "GetAssignment", Handler: unaryHandler(MethodGetAssignment, DispatchServiceServer.GetAssignment)},
		{MethodName: "ListMyAssignments", Handler: unaryHandler(MethodListMyAssignments, DispatchServiceServer.ListMyAssignments)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "inspection/dispatch/v1/dispatch.proto",
}
