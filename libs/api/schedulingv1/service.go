package schedulingv1

import (
	"context"

	"google.golang.org/grpc"

	"github.com/edusched/school/libs/grpcx"
)

const ServiceName = "school.scheduling.v1.Scheduling"

const (
	methodFindConflicts       = "/" + ServiceName + "/FindConflicts"
	methodRoomAvailability    = "/" + ServiceName + "/RoomAvailability"
	methodTeacherAvailability = "/" + ServiceName + "/TeacherAvailability"
)

type SchedulingServer interface {
	FindConflicts(context.Context, *FindConflictsRequest) (*FindConflictsResponse, error)
	RoomAvailability(context.Context, *RoomAvailabilityRequest) (*RoomAvailabilityResponse, error)
	TeacherAvailability(context.Context, *TeacherAvailabilityRequest) (*TeacherAvailabilityResponse, error)
}

func RegisterSchedulingServer(s grpc.ServiceRegistrar, srv SchedulingServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "FindConflicts", Handler: unary(methodFindConflicts, SchedulingServer.FindConflicts)},
		{MethodName: "RoomAvailability", Handler: unary(methodRoomAvailability, SchedulingServer.RoomAvailability)},
		{MethodName: "TeacherAvailability", Handler: unary(methodTeacherAvailability, SchedulingServer.TeacherAvailability)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "school/scheduling/v1/scheduling",
}

func unary[Req, Resp any](fullMethod string, call func(SchedulingServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SchedulingServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(SchedulingServer), ctx, req.(*Req))
		})
	}
}

// Client calls the Scheduling service over conn using the JSON codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) FindConflicts(ctx context.Context, in *FindConflictsRequest, opts ...grpc.CallOption) (*FindConflictsResponse, error) {
	out := new(FindConflictsResponse)
	if err := c.invoke(ctx, methodFindConflicts, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RoomAvailability(ctx context.Context, in *RoomAvailabilityRequest, opts ...grpc.CallOption) (*RoomAvailabilityResponse, error) {
	out := new(RoomAvailabilityResponse)
	if err := c.invoke(ctx, methodRoomAvailability, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TeacherAvailability(ctx context.Context, in *TeacherAvailabilityRequest, opts ...grpc.CallOption) (*TeacherAvailabilityResponse, error) {
	out := new(TeacherAvailabilityResponse)
	if err := c.invoke(ctx, methodTeacherAvailability, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(grpcx.JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}
