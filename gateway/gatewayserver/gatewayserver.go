package gatewayserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/xiaonanln/edgegate/computepb"
	"github.com/xiaonanln/edgegate/gateway"
	"github.com/xiaonanln/edgegate/kernel"
	"github.com/xiaonanln/edgegate/registry"
	"github.com/xiaonanln/edgegate/util/callcontext"
	"github.com/xiaonanln/edgegate/util/logger"
	"github.com/xiaonanln/edgegate/util/metrics"
	"github.com/xiaonanln/edgegate/util/workerpool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"
)

// GatewayServerConfig holds configuration for the gateway server
type GatewayServerConfig struct {
	ListenAddress        string        // Address to listen on for gRPC (e.g., ":50052")
	AdvertiseAddress     string        // Address published in etcd (e.g., "localhost:50052")
	ReplicaID            string        // Identity reported in responses
	KernelPath           string        // Edge kernel executable
	KernelRunLog         string        // Optional: append-only text log of kernel runs
	WorkerPoolSize       int           // Optional: concurrent operations (default: 4)
	MetricsListenAddress string        // Optional: HTTP address for /metrics and /healthz
	EtcdAddress          string        // Optional: register this replica in etcd
	EtcdPrefix           string        // Optional: etcd key prefix (default: "/edgegate")
	ShutdownGrace        time.Duration // Optional: graceful shutdown timeout (default: 5s)
}

// GatewayServer serves one gateway replica over gRPC.
// ProcessImage and Predict run on a bounded worker pool; Health does not.
type GatewayServer struct {
	config     *GatewayServerConfig
	gateway    *gateway.Gateway
	pool       *workerpool.WorkerPool
	runLog     *kernel.FileRunLog
	registry   *registry.Registry
	health     *health.Server
	logger     *logger.Logger
	grpcServer *grpc.Server
	httpServer *http.Server
	listener   net.Listener
	stopOnce   sync.Once
}

// NewGatewayServer creates a new gateway server instance
func NewGatewayServer(config *GatewayServerConfig) (*GatewayServer, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid gateway configuration: %w", err)
	}

	s := &GatewayServer{
		config: config,
		logger: logger.NewLogger(fmt.Sprintf("GatewayServer(%s)", config.ReplicaID)),
	}

	invokerOpts := []kernel.Option{kernel.WithLogger(logger.NewLogger("Kernel(" + config.ReplicaID + ")"))}
	if config.KernelRunLog != "" {
		runLog, err := kernel.NewFileRunLog(config.KernelRunLog)
		if err != nil {
			return nil, err
		}
		s.runLog = runLog
		invokerOpts = append(invokerOpts, kernel.WithRunLog(runLog))
	}

	gw, err := gateway.NewGateway(&gateway.GatewayConfig{
		ReplicaID:  config.ReplicaID,
		KernelPath: config.KernelPath,
		Invoker:    kernel.NewInvoker(invokerOpts...),
	})
	if err != nil {
		return nil, err
	}
	s.gateway = gw
	return s, nil
}

// validateConfig validates the gateway server configuration
func validateConfig(config *GatewayServerConfig) error {
	if config == nil {
		return fmt.Errorf("config cannot be nil")
	}
	if config.ListenAddress == "" {
		return fmt.Errorf("ListenAddress cannot be empty")
	}
	if config.ReplicaID == "" {
		return fmt.Errorf("ReplicaID cannot be empty")
	}
	if config.KernelPath == "" {
		return fmt.Errorf("KernelPath cannot be empty")
	}
	if config.WorkerPoolSize < 0 {
		return fmt.Errorf("WorkerPoolSize cannot be negative")
	}
	if config.EtcdAddress != "" && config.AdvertiseAddress == "" {
		return fmt.Errorf("AdvertiseAddress cannot be empty when EtcdAddress is set")
	}

	// Set defaults
	if config.WorkerPoolSize == 0 {
		config.WorkerPoolSize = 4
	}
	if config.EtcdPrefix == "" {
		config.EtcdPrefix = registry.DefaultPrefix
	}
	if config.ShutdownGrace == 0 {
		config.ShutdownGrace = 5 * time.Second
	}

	return nil
}

// Start listens and begins serving in the background. It returns once the
// listener is bound and, when configured, the replica is registered in etcd.
func (s *GatewayServer) Start(ctx context.Context) error {
	s.logger.Infof("Starting gateway server on %s (pool=%d, kernel=%s)",
		s.config.ListenAddress, s.config.WorkerPoolSize, s.config.KernelPath)

	listener, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.listener = listener

	s.pool = workerpool.New(context.Background(), s.config.WorkerPoolSize)
	s.pool.Start()

	s.grpcServer = grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.correlationInterceptor, s.metricsInterceptor),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    10 * time.Second,
			Timeout: 5 * time.Second,
		}),
	)
	computepb.RegisterSobelServiceServer(s.grpcServer, s)
	computepb.RegisterPredictServiceServer(s.grpcServer, s)

	s.health = health.NewServer()
	healthpb.RegisterHealthServer(s.grpcServer, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(computepb.SobelServiceName, healthpb.HealthCheckResponse_SERVING)
	s.health.SetServingStatus(computepb.PredictServiceName, healthpb.HealthCheckResponse_SERVING)

	reflection.Register(s.grpcServer)

	go func() {
		if err := s.grpcServer.Serve(listener); err != nil {
			s.logger.Errorf("gRPC server error: %v", err)
		}
	}()
	s.logger.Infof("Gateway gRPC server listening on %s", listener.Addr())

	if err := s.startMetricsServer(); err != nil {
		s.Stop()
		return err
	}

	if s.config.EtcdAddress != "" {
		s.registry = registry.New([]string{s.config.EtcdAddress}, s.config.EtcdPrefix)
		if err := s.registry.Connect(ctx); err != nil {
			s.Stop()
			return err
		}
		if err := s.registry.Register(ctx, s.config.ReplicaID, s.config.AdvertiseAddress); err != nil {
			s.Stop()
			return err
		}
	}
	return nil
}

// Addr returns the bound gRPC address, useful when listening on port 0
func (s *GatewayServer) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Gateway returns the underlying gateway
func (s *GatewayServer) Gateway() *gateway.Gateway {
	return s.gateway
}

func (s *GatewayServer) startMetricsServer() error {
	if s.config.MetricsListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok\n"))
	})

	l, err := net.Listen("tcp", s.config.MetricsListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.MetricsListenAddress, err)
	}
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		s.logger.Infof("Metrics server listening on %s", l.Addr())
		if err := s.httpServer.Serve(l); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Metrics server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully stops the gateway server
func (s *GatewayServer) Stop() error {
	s.stopOnce.Do(s.stop)
	return nil
}

func (s *GatewayServer) stop() {
	s.logger.Infof("Stopping gateway server")

	if s.registry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.registry.Deregister(ctx); err != nil {
			s.logger.Warnf("Failed to deregister: %v", err)
		}
		cancel()
		s.registry.Close()
	}

	if s.health != nil {
		s.health.Shutdown()
	}

	if s.grpcServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.ShutdownGrace)
		defer shutdownCancel()

		done := make(chan struct{})
		go func() {
			s.grpcServer.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			s.logger.Infof("gRPC server stopped gracefully")
		case <-shutdownCtx.Done():
			s.logger.Warnf("gRPC server shutdown timed out, forcing stop")
			s.grpcServer.Stop()
		}
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		s.httpServer.Shutdown(ctx)
		cancel()
	}

	if s.pool != nil {
		s.pool.Stop()
	}
	if s.runLog != nil {
		s.runLog.Close()
	}

	s.logger.Infof("Gateway server stopped")
}

// correlationInterceptor moves the caller's correlation id from metadata into the context
func (s *GatewayServer) correlationInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	if id := callcontext.FromIncoming(ctx); id != "" {
		ctx = callcontext.WithCorrelationID(ctx, id)
	}
	return handler(ctx, req)
}

// metricsInterceptor records count and latency of every compute RPC by status code
func (s *GatewayServer) metricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	metrics.RecordGatewayRequest(s.config.ReplicaID, path.Base(info.FullMethod), status.Code(err).String(), time.Since(start).Seconds())
	return resp, err
}

// runPooled executes fn on the worker pool. A full pool queues the call; the
// caller's deadline still applies while waiting.
func (s *GatewayServer) runPooled(ctx context.Context, fn func(ctx context.Context) error) error {
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		metrics.WorkerBusy(s.config.ReplicaID, 1)
		defer metrics.WorkerBusy(s.config.ReplicaID, -1)
		return fn(ctx)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, workerpool.ErrPoolStopped):
		return status.Error(codes.Unavailable, "gateway is shutting down")
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.FromContextError(err).Err()
}

// ProcessImage implements computepb.SobelServiceServer
func (s *GatewayServer) ProcessImage(ctx context.Context, req *computepb.SobelRequest) (*computepb.SobelResponse, error) {
	var resp *computepb.SobelResponse
	err := s.runPooled(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.gateway.ProcessImage(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Predict implements computepb.PredictServiceServer
func (s *GatewayServer) Predict(ctx context.Context, req *computepb.PredictRequest) (*computepb.PredictResponse, error) {
	var resp *computepb.PredictResponse
	err := s.runPooled(ctx, func(ctx context.Context) error {
		var err error
		resp, err = s.gateway.Predict(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Health implements computepb.PredictServiceServer. It bypasses the worker pool.
func (s *GatewayServer) Health(ctx context.Context, req *computepb.Empty) (*computepb.HealthStatus, error) {
	return s.gateway.Health(ctx, req)
}
