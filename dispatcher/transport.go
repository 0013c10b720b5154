package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/xiaonanln/edgegate/computepb"
	"github.com/xiaonanln/edgegate/util/callcontext"
	"github.com/xiaonanln/edgegate/util/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Transport performs one attempt against one endpoint
type Transport interface {
	Call(ctx context.Context, endpoint string, env Envelope) (*Response, error)
	Close() error
}

// GRPCTransport calls gateways over gRPC, keeping one connection per endpoint
type GRPCTransport struct {
	mu       sync.Mutex
	conns    map[string]*grpc.ClientConn
	dialOpts []grpc.DialOption
	logger   *logger.Logger
}

// NewGRPCTransport creates a transport. Extra dial options are appended to the defaults.
func NewGRPCTransport(opts ...grpc.DialOption) *GRPCTransport {
	return &GRPCTransport{
		conns:    make(map[string]*grpc.ClientConn),
		dialOpts: append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...),
		logger:   logger.NewLogger("GRPCTransport"),
	}
}

// conn returns the cached connection to endpoint, creating it on first use
func (t *GRPCTransport) conn(endpoint string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conns == nil {
		return nil, fmt.Errorf("transport closed")
	}
	if cc, ok := t.conns[endpoint]; ok {
		return cc, nil
	}

	cc, err := grpc.NewClient(endpoint, t.dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", endpoint, err)
	}
	t.conns[endpoint] = cc
	t.logger.Debugf("Created connection to %s", endpoint)
	return cc, nil
}

// Call implements Transport. The correlation id travels as metadata.
func (t *GRPCTransport) Call(ctx context.Context, endpoint string, env Envelope) (*Response, error) {
	cc, err := t.conn(endpoint)
	if err != nil {
		return nil, err
	}
	ctx = callcontext.OutgoingContext(ctx, env.CorrelationID)

	switch env.Kind {
	case KindImage:
		resp, err := computepb.NewSobelServiceClient(cc).ProcessImage(ctx, &computepb.SobelRequest{
			Size:    env.Image.Size,
			Mode:    env.Image.Mode,
			Threads: env.Image.Threads,
		})
		if err != nil {
			return nil, err
		}
		return &Response{Image: resp}, nil
	case KindPredict:
		resp, err := computepb.NewPredictServiceClient(cc).Predict(ctx, &computepb.PredictRequest{
			Input:     env.Input,
			RequestID: env.CorrelationID,
		})
		if err != nil {
			return nil, err
		}
		return &Response{Predict: resp}, nil
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown request kind %q", env.Kind)
	}
}

// Close closes every cached connection
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var firstErr error
	for endpoint, cc := range t.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close connection to %s: %w", endpoint, err)
		}
	}
	t.conns = nil
	return firstErr
}
