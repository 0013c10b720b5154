package computepb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	SobelService_ProcessImage_FullMethodName = "/" + SobelServiceName + "/ProcessImage"
	PredictService_Predict_FullMethodName    = "/" + PredictServiceName + "/Predict"
	PredictService_Health_FullMethodName     = "/" + PredictServiceName + "/Health"
)

// SobelServiceServer is the server API for SobelService.
type SobelServiceServer interface {
	ProcessImage(context.Context, *SobelRequest) (*SobelResponse, error)
}

// PredictServiceServer is the server API for PredictService.
type PredictServiceServer interface {
	Predict(context.Context, *PredictRequest) (*PredictResponse, error)
	Health(context.Context, *Empty) (*HealthStatus, error)
}

// RegisterSobelServiceServer registers srv on s.
func RegisterSobelServiceServer(s grpc.ServiceRegistrar, srv SobelServiceServer) {
	File()
	s.RegisterService(&SobelService_ServiceDesc, srv)
}

// RegisterPredictServiceServer registers srv on s.
func RegisterPredictServiceServer(s grpc.ServiceRegistrar, srv PredictServiceServer) {
	File()
	s.RegisterService(&PredictService_ServiceDesc, srv)
}

// unaryHandler builds a grpc.MethodHandler that decodes into a dynamic message of
// type reqName and delegates to call. call returns the wire response.
func unaryHandler(reqName protoreflect.Name, fullMethod string, call func(srv interface{}, ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error)) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := newMessage(reqName)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			out, err := call(srv, ctx, req.(*dynamicpb.Message))
			if err != nil {
				return nil, err
			}
			return out, nil
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

// SobelService_ServiceDesc is the grpc.ServiceDesc for SobelService.
var SobelService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: SobelServiceName,
	HandlerType: (*SobelServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ProcessImage",
			Handler: unaryHandler("SobelRequest", SobelService_ProcessImage_FullMethodName,
				func(srv interface{}, ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error) {
					resp, err := srv.(SobelServiceServer).ProcessImage(ctx, SobelRequestFromProto(req))
					if err != nil {
						return nil, err
					}
					return resp.ToProto(), nil
				}),
		},
	},
	Metadata: ProtoFileName,
}

// PredictService_ServiceDesc is the grpc.ServiceDesc for PredictService.
var PredictService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: PredictServiceName,
	HandlerType: (*PredictServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Predict",
			Handler: unaryHandler("PredictRequest", PredictService_Predict_FullMethodName,
				func(srv interface{}, ctx context.Context, req *dynamicpb.Message) (*dynamicpb.Message, error) {
					resp, err := srv.(PredictServiceServer).Predict(ctx, PredictRequestFromProto(req))
					if err != nil {
						return nil, err
					}
					return resp.ToProto(), nil
				}),
		},
		{
			MethodName: "Health",
			Handler: unaryHandler("Empty", PredictService_Health_FullMethodName,
				func(srv interface{}, ctx context.Context, _ *dynamicpb.Message) (*dynamicpb.Message, error) {
					resp, err := srv.(PredictServiceServer).Health(ctx, &Empty{})
					if err != nil {
						return nil, err
					}
					return resp.ToProto(), nil
				}),
		},
	},
	Metadata: ProtoFileName,
}

// SobelServiceClient is the client API for SobelService.
type SobelServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSobelServiceClient returns a client bound to cc.
func NewSobelServiceClient(cc grpc.ClientConnInterface) *SobelServiceClient {
	return &SobelServiceClient{cc: cc}
}

// ProcessImage invokes SobelService.ProcessImage.
func (c *SobelServiceClient) ProcessImage(ctx context.Context, in *SobelRequest, opts ...grpc.CallOption) (*SobelResponse, error) {
	out := newMessage("SobelResponse")
	if err := c.cc.Invoke(ctx, SobelService_ProcessImage_FullMethodName, in.ToProto(), out, opts...); err != nil {
		return nil, err
	}
	return SobelResponseFromProto(out), nil
}

// PredictServiceClient is the client API for PredictService.
type PredictServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPredictServiceClient returns a client bound to cc.
func NewPredictServiceClient(cc grpc.ClientConnInterface) *PredictServiceClient {
	return &PredictServiceClient{cc: cc}
}

// Predict invokes PredictService.Predict.
func (c *PredictServiceClient) Predict(ctx context.Context, in *PredictRequest, opts ...grpc.CallOption) (*PredictResponse, error) {
	out := newMessage("PredictResponse")
	if err := c.cc.Invoke(ctx, PredictService_Predict_FullMethodName, in.ToProto(), out, opts...); err != nil {
		return nil, err
	}
	return PredictResponseFromProto(out), nil
}

// Health invokes PredictService.Health.
func (c *PredictServiceClient) Health(ctx context.Context, opts ...grpc.CallOption) (*HealthStatus, error) {
	out := newMessage("HealthStatus")
	if err := c.cc.Invoke(ctx, PredictService_Health_FullMethodName, (&Empty{}).ToProto(), out, opts...); err != nil {
		return nil, err
	}
	return HealthStatusFromProto(out), nil
}
