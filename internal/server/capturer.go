package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "imagecapturer.v1.Capturer"

// CapturerServer is the server API for the Capturer service. Messages are
// free-form structs so the service needs no generated code.
type CapturerServer interface {
	Begin(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Deliver(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelPending(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelDecode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Status(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(CapturerServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CapturerServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CapturerServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func fullMethod(method string) string { return "/" + serviceName + "/" + method }

var CapturerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CapturerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Begin", CapturerServer.Begin),
		unary("Deliver", CapturerServer.Deliver),
		unary("CancelPending", CapturerServer.CancelPending),
		unary("CancelDecode", CapturerServer.CancelDecode),
		unary("Status", CapturerServer.Status),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "imagecapturer/v1/capturer.proto",
}

func RegisterCapturerServer(s grpc.ServiceRegistrar, srv CapturerServer) {
	s.RegisterService(&CapturerServiceDesc, srv)
}

// Client calls a remote Capturer service.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) call(ctx context.Context, method string, in map[string]any) (map[string]any, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod(method), req, out); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}

func (c *Client) Begin(ctx context.Context, correlationID int, title string) (map[string]any, error) {
	in := map[string]any{"correlation_id": correlationID}
	if title != "" {
		in["title"] = title
	}
	return c.call(ctx, "Begin", in)
}

func (c *Client) Deliver(ctx context.Context, correlationID int, succeeded bool, locator string) (map[string]any, error) {
	return c.call(ctx, "Deliver", map[string]any{
		"correlation_id": correlationID,
		"succeeded":      succeeded,
		"locator":        locator,
	})
}

func (c *Client) CancelPending(ctx context.Context) (map[string]any, error) {
	return c.call(ctx, "CancelPending", nil)
}

func (c *Client) CancelDecode(ctx context.Context) (map[string]any, error) {
	return c.call(ctx, "CancelDecode", nil)
}

func (c *Client) Status(ctx context.Context) (map[string]any, error) {
	return c.call(ctx, "Status", nil)
}
