package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xiaonanln/edgegate/computepb"
	"github.com/xiaonanln/edgegate/kernel"
	"github.com/xiaonanln/edgegate/util/callcontext"
	"github.com/xiaonanln/edgegate/util/logger"
	"github.com/xiaonanln/edgegate/util/metrics"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	DefaultMode    = kernel.ModeParallel
	DefaultThreads = 4

	MaxImageSize = 16384
	MaxThreads   = 256
)

// GatewayConfig holds configuration for the gateway
type GatewayConfig struct {
	ReplicaID  string          // Identity reported in every response
	KernelPath string          // Path of the edge kernel executable
	Invoker    *kernel.Invoker // Optional: defaults to a plain Invoker
}

// Gateway turns compute requests into kernel invocations on one replica.
// It implements both computepb.SobelServiceServer and computepb.PredictServiceServer.
type Gateway struct {
	config  *GatewayConfig
	invoker *kernel.Invoker
	logger  *logger.Logger
}

// NewGateway creates a new gateway instance
func NewGateway(config *GatewayConfig) (*Gateway, error) {
	if err := validateGatewayConfig(config); err != nil {
		return nil, fmt.Errorf("invalid gateway configuration: %w", err)
	}

	g := &Gateway{
		config:  config,
		invoker: config.Invoker,
		logger:  logger.NewLogger(fmt.Sprintf("Gateway(%s)", config.ReplicaID)),
	}
	if g.invoker == nil {
		g.invoker = kernel.NewInvoker()
	}
	return g, nil
}

// validateGatewayConfig validates the gateway configuration
func validateGatewayConfig(config *GatewayConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.ReplicaID == "" {
		return fmt.Errorf("ReplicaID cannot be empty")
	}
	if config.KernelPath == "" {
		return fmt.Errorf("KernelPath cannot be empty")
	}
	return nil
}

// ReplicaID returns the identity this gateway reports
func (g *Gateway) ReplicaID() string {
	return g.config.ReplicaID
}

// correlationID picks the caller's id from the context, then fallback, else mints one
func correlationID(ctx context.Context, fallback string) string {
	if id := callcontext.CorrelationID(ctx); id != "" {
		return id
	}
	if id := callcontext.FromIncoming(ctx); id != "" {
		return id
	}
	if fallback != "" {
		return fallback
	}
	return uuid.NewString()
}

// normalizeImageRequest applies defaults for unset fields and checks the bounds
func normalizeImageRequest(req *computepb.SobelRequest) (kernel.Command, error) {
	cmd := kernel.Command{
		Mode:    req.Mode,
		Size:    int(req.Size),
		Threads: int(req.Threads),
	}
	if cmd.Mode == "" {
		cmd.Mode = DefaultMode
	}
	if cmd.Threads == 0 {
		cmd.Threads = DefaultThreads
	}

	if cmd.Mode != kernel.ModeSequential && cmd.Mode != kernel.ModeParallel {
		return cmd, fmt.Errorf("mode must be %q or %q, got %q", kernel.ModeSequential, kernel.ModeParallel, cmd.Mode)
	}
	if cmd.Size < 1 || cmd.Size > MaxImageSize {
		return cmd, fmt.Errorf("size must be in [1, %d], got %d", MaxImageSize, cmd.Size)
	}
	if cmd.Threads < 1 || cmd.Threads > MaxThreads {
		return cmd, fmt.Errorf("threads must be in [1, %d], got %d", MaxThreads, cmd.Threads)
	}
	return cmd, nil
}

// ProcessImage runs the edge kernel once for the request.
// When the kernel fails the response is still returned with ServerElapsedMs set,
// alongside an Internal status carrying the kernel's stderr.
func (g *Gateway) ProcessImage(ctx context.Context, req *computepb.SobelRequest) (*computepb.SobelResponse, error) {
	id := correlationID(ctx, "")
	log := g.logger.With("id", id)

	cmd, err := normalizeImageRequest(req)
	if err != nil {
		log.Warnf("REJECTED ProcessImage: %v", err)
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	cmd.Path = g.config.KernelPath

	log.Infof("REQ ProcessImage size=%d mode=%s threads=%d", cmd.Size, cmd.Mode, cmd.Threads)

	start := time.Now()
	res, runErr := g.invoker.Run(ctx, cmd)
	elapsed := time.Since(start)

	resp := &computepb.SobelResponse{
		Size:            int32(cmd.Size),
		Mode:            cmd.Mode,
		Threads:         int32(cmd.Threads),
		ServerElapsedMs: float64(elapsed) / float64(time.Millisecond),
		ReplicaID:       g.config.ReplicaID,
	}

	if runErr != nil {
		var kerr *kernel.KernelExecutionError
		if errors.As(runErr, &kerr) {
			log.Errorf("FAILED ProcessImage exit=%d latency_ms=%.3f: %s", kerr.ExitCode, resp.ServerElapsedMs, strings.TrimSpace(kerr.Stderr))
			msg := strings.TrimSpace(kerr.Stderr)
			if msg == "" {
				msg = kerr.Error()
			}
			return resp, status.Errorf(codes.Internal, "kernel failed on %s: %s", g.config.ReplicaID, msg)
		}
		log.Warnf("FAILED ProcessImage after %.3f ms: %v", resp.ServerElapsedMs, runErr)
		return nil, status.FromContextError(runErr).Err()
	}

	resp.AlgoReportedMs = res.KernelReportedMs
	metrics.RecordKernelReported(g.config.ReplicaID, cmd.Mode, res.KernelReportedMs/1000)
	log.Infof("RESP ProcessImage latency_ms=%.3f algo_ms=%.3f", resp.ServerElapsedMs, resp.AlgoReportedMs)
	return resp, nil
}

// SumCSV adds up the comma-separated numbers in input. Blank fields are skipped.
func SumCSV(input string) (float64, error) {
	var sum float64
	for _, field := range strings.Split(input, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", field)
		}
		sum += v
	}
	return sum, nil
}

// Predict sums the numbers in the request and reports how long that took.
func (g *Gateway) Predict(ctx context.Context, req *computepb.PredictRequest) (*computepb.PredictResponse, error) {
	id := correlationID(ctx, req.RequestID)
	log := g.logger.With("id", id)
	log.Infof("REQ Predict input=%q", req.Input)

	start := time.Now()
	sum, err := SumCSV(req.Input)
	if err != nil {
		log.Warnf("REJECTED Predict: %v", err)
		return nil, status.Errorf(codes.InvalidArgument, "bad input: %v", err)
	}

	resp := &computepb.PredictResponse{
		Output:    strconv.FormatFloat(sum, 'f', -1, 64),
		LatencyMs: float64(time.Since(start)) / float64(time.Millisecond),
		ReplicaID: g.config.ReplicaID,
	}
	log.Infof("RESP Predict output=%s latency_ms=%.3f", resp.Output, resp.LatencyMs)
	return resp, nil
}

// Health reports liveness. It has no side effects.
func (g *Gateway) Health(ctx context.Context, _ *computepb.Empty) (*computepb.HealthStatus, error) {
	return &computepb.HealthStatus{Alive: true}, nil
}
