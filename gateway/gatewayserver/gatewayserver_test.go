package gatewayserver

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaonanln/edgegate/computepb"
	"github.com/xiaonanln/edgegate/util/callcontext"
	"github.com/xiaonanln/edgegate/util/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// startServer starts a gateway on a free port backed by a fake kernel
func startServer(t *testing.T, cfg *GatewayServerConfig) (*GatewayServer, *grpc.ClientConn) {
	t.Helper()
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = "localhost:0"
	}
	if cfg.ReplicaID == "" {
		cfg.ReplicaID = "replica-test"
	}

	server, err := NewGatewayServer(cfg)
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { server.Stop() })

	conn, err := grpc.NewClient(server.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return server, conn
}

func TestNewGatewayServer(t *testing.T) {
	tests := []struct {
		name       string
		config     *GatewayServerConfig
		errContain string
	}{
		{
			name:   "valid config",
			config: &GatewayServerConfig{ListenAddress: ":0", ReplicaID: "r1", KernelPath: "/bin/true"},
		},
		{
			name:       "nil config",
			errContain: "config cannot be nil",
		},
		{
			name:       "empty listen address",
			config:     &GatewayServerConfig{ReplicaID: "r1", KernelPath: "/bin/true"},
			errContain: "ListenAddress cannot be empty",
		},
		{
			name:       "empty replica id",
			config:     &GatewayServerConfig{ListenAddress: ":0", KernelPath: "/bin/true"},
			errContain: "ReplicaID cannot be empty",
		},
		{
			name:       "empty kernel path",
			config:     &GatewayServerConfig{ListenAddress: ":0", ReplicaID: "r1"},
			errContain: "KernelPath cannot be empty",
		},
		{
			name:       "negative pool",
			config:     &GatewayServerConfig{ListenAddress: ":0", ReplicaID: "r1", KernelPath: "/bin/true", WorkerPoolSize: -1},
			errContain: "WorkerPoolSize cannot be negative",
		},
		{
			name:       "etcd without advertise address",
			config:     &GatewayServerConfig{ListenAddress: ":0", ReplicaID: "r1", KernelPath: "/bin/true", EtcdAddress: "localhost:2379"},
			errContain: "AdvertiseAddress cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, err := NewGatewayServer(tt.config)
			if tt.errContain != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContain)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 4, server.config.WorkerPoolSize)
			assert.Equal(t, "/edgegate", server.config.EtcdPrefix)
			assert.Equal(t, 5*time.Second, server.config.ShutdownGrace)
		})
	}
}

func TestGatewayServer_ServesComputeRPCs(t *testing.T) {
	_, conn := startServer(t, &GatewayServerConfig{KernelPath: testutil.WriteKernelScript(t, testutil.KernelOK)})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sobel := computepb.NewSobelServiceClient(conn)
	resp, err := sobel.ProcessImage(ctx, &computepb.SobelRequest{Size: 256, Mode: "omp", Threads: 4})
	require.NoError(t, err)
	assert.Equal(t, int32(256), resp.Size)
	assert.Equal(t, 12.5, resp.AlgoReportedMs)
	assert.Equal(t, "replica-test", resp.ReplicaID)

	predict := computepb.NewPredictServiceClient(conn)
	presp, err := predict.Predict(ctx, &computepb.PredictRequest{Input: "1,2,3,4,5", RequestID: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "15", presp.Output)

	_, err = predict.Predict(ctx, &computepb.PredictRequest{Input: "1,nope"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	h, err := predict.Health(ctx)
	require.NoError(t, err)
	assert.True(t, h.Alive)
}

func TestGatewayServer_KernelFailureIsInternal(t *testing.T) {
	_, conn := startServer(t, &GatewayServerConfig{KernelPath: testutil.WriteKernelScript(t, testutil.KernelBoom)})

	_, err := computepb.NewSobelServiceClient(conn).ProcessImage(context.Background(), &computepb.SobelRequest{Size: 8})
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, status.Convert(err).Message(), "boom")
}

func TestGatewayServer_StandardHealthService(t *testing.T) {
	_, conn := startServer(t, &GatewayServerConfig{KernelPath: "/bin/true"})

	client := healthpb.NewHealthClient(conn)
	for _, service := range []string{"", computepb.SobelServiceName, computepb.PredictServiceName} {
		resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, err, service)
		assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status, service)
	}
}

func TestGatewayServer_PoolBoundsKernelConcurrency(t *testing.T) {
	kernel := testutil.WriteKernelScript(t, "sleep 0.3\necho time_ms=300")
	server, conn := startServer(t, &GatewayServerConfig{KernelPath: kernel, WorkerPoolSize: 2})
	client := computepb.NewSobelServiceClient(conn)
	predict := computepb.NewPredictServiceClient(conn)

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := client.ProcessImage(ctx, &computepb.SobelRequest{Size: 8, Mode: "seq", Threads: 1})
			errs <- err
		}()
	}

	// Health bypasses the saturated pool
	time.Sleep(100 * time.Millisecond)
	hstart := time.Now()
	_, err := predict.Health(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(hstart), 250*time.Millisecond)

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	// four 300ms runs on two workers take at least two rounds
	assert.GreaterOrEqual(t, time.Since(start), 600*time.Millisecond)

	testutil.WaitFor(t, 2*time.Second, "worker pool to drain", func() bool {
		return server.pool.Busy() == 0
	})
}

func TestGatewayServer_MetricsEndpoint(t *testing.T) {
	metricsAddr := testutil.GetFreeAddress()
	_, conn := startServer(t, &GatewayServerConfig{
		ReplicaID:            "replica-metrics",
		KernelPath:           "/bin/true",
		MetricsListenAddress: metricsAddr,
	})

	_, err := computepb.NewPredictServiceClient(conn).Predict(context.Background(), &computepb.PredictRequest{Input: "1"})
	require.NoError(t, err)

	resp, err := http.Get("http://" + metricsAddr + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `edgegate_gateway_requests_total{code="OK",method="Predict",replica="replica-metrics"}`)

	resp, err = http.Get("http://" + metricsAddr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGatewayServer_KernelRunLog(t *testing.T) {
	runLog := filepath.Join(t.TempDir(), "kernel.log")
	_, conn := startServer(t, &GatewayServerConfig{
		KernelPath:   testutil.WriteKernelScript(t, testutil.KernelOK),
		KernelRunLog: runLog,
	})

	_, err := computepb.NewSobelServiceClient(conn).ProcessImage(context.Background(), &computepb.SobelRequest{Size: 8})
	require.NoError(t, err)

	data, err := os.ReadFile(runLog)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "\n"))
}

func TestGatewayServer_StopRejectsNewCalls(t *testing.T) {
	server, conn := startServer(t, &GatewayServerConfig{KernelPath: "/bin/true"})
	require.NoError(t, server.Stop())
	require.NoError(t, server.Stop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := computepb.NewPredictServiceClient(conn).Health(ctx)
	assert.Error(t, err)
}

func TestCorrelationInterceptor(t *testing.T) {
	s := &GatewayServer{}
	md := metadata.Pairs(callcontext.CorrelationIDHeader, "corr-42")
	ctx := metadata.NewIncomingContext(context.Background(), md)

	var seen string
	_, err := s.correlationInterceptor(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req interface{}) (interface{}, error) {
		seen = callcontext.CorrelationID(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "corr-42", seen)
}
