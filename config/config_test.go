package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `version: 1

gateway:
  listen_port: 50060
  replica_id: edge-a
  kernel_executable_path: /opt/edge_sobel
  worker_pool_size: 8
  metrics_addr: ":9100"

client:
  replica_addresses:
    - localhost:50060
    - localhost:50061
  max_attempts: 5
  per_attempt_timeout_ms: 250
  attempt_backoff_ms: 20
  outcome_log: outcomes.csv

etcd:
  endpoints:
    - localhost:2379
  prefix: /edge
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Gateway.ListenPort != 50060 {
		t.Errorf("ListenPort = %d, want 50060", cfg.Gateway.ListenPort)
	}
	if cfg.Gateway.ReplicaID != "edge-a" {
		t.Errorf("ReplicaID = %q, want edge-a", cfg.Gateway.ReplicaID)
	}
	if cfg.Gateway.KernelExecutablePath != "/opt/edge_sobel" {
		t.Errorf("KernelExecutablePath = %q", cfg.Gateway.KernelExecutablePath)
	}
	if cfg.Gateway.WorkerPoolSize != 8 {
		t.Errorf("WorkerPoolSize = %d, want 8", cfg.Gateway.WorkerPoolSize)
	}
	if got := strings.Join(cfg.Client.ReplicaAddresses, ","); got != "localhost:50060,localhost:50061" {
		t.Errorf("ReplicaAddresses = %s", got)
	}
	if cfg.Client.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Client.MaxAttempts)
	}
	if cfg.PerAttemptTimeout() != 250*time.Millisecond {
		t.Errorf("PerAttemptTimeout = %v", cfg.PerAttemptTimeout())
	}
	if cfg.AttemptBackoff() != 20*time.Millisecond {
		t.Errorf("AttemptBackoff = %v", cfg.AttemptBackoff())
	}
	if cfg.Client.OutcomeLog != "outcomes.csv" {
		t.Errorf("OutcomeLog = %q", cfg.Client.OutcomeLog)
	}
	if cfg.GetEtcdAddress() != "localhost:2379" {
		t.Errorf("GetEtcdAddress = %q", cfg.GetEtcdAddress())
	}
	if cfg.Etcd.Prefix != "/edge" {
		t.Errorf("Etcd.Prefix = %q", cfg.Etcd.Prefix)
	}
	if cfg.ListenAddress() != ":50060" {
		t.Errorf("ListenAddress = %q", cfg.ListenAddress())
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv(KernelPathEnv, "")

	cfg := Default()
	if cfg.Gateway.ListenPort != 50052 {
		t.Errorf("ListenPort = %d, want 50052", cfg.Gateway.ListenPort)
	}
	if cfg.Gateway.ReplicaID != "replica-50052" {
		t.Errorf("ReplicaID = %q", cfg.Gateway.ReplicaID)
	}
	if cfg.Gateway.WorkerPoolSize != 4 {
		t.Errorf("WorkerPoolSize = %d, want 4", cfg.Gateway.WorkerPoolSize)
	}
	if cfg.Gateway.KernelExecutablePath != filepath.Join("..", "Parallel", "edge_sobel") {
		t.Errorf("KernelExecutablePath = %q", cfg.Gateway.KernelExecutablePath)
	}
	if len(cfg.Client.ReplicaAddresses) != 1 || cfg.Client.ReplicaAddresses[0] != "localhost:50052" {
		t.Errorf("ReplicaAddresses = %v", cfg.Client.ReplicaAddresses)
	}
	if cfg.Client.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Client.MaxAttempts)
	}
	if cfg.PerAttemptTimeout() != time.Second {
		t.Errorf("PerAttemptTimeout = %v, want 1s", cfg.PerAttemptTimeout())
	}
	if cfg.AttemptBackoff() != 0 {
		t.Errorf("AttemptBackoff = %v, want 0", cfg.AttemptBackoff())
	}
	if cfg.GetEtcdAddress() != "" {
		t.Errorf("GetEtcdAddress = %q, want empty", cfg.GetEtcdAddress())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestDefaultKernelPathFromEnv(t *testing.T) {
	t.Setenv(KernelPathEnv, "/usr/local/bin/edge_sobel")
	if got := DefaultKernelPath(); got != "/usr/local/bin/edge_sobel" {
		t.Errorf("DefaultKernelPath() = %q", got)
	}
	if got := Default().Gateway.KernelExecutablePath; got != "/usr/local/bin/edge_sobel" {
		t.Errorf("Default kernel path = %q", got)
	}
}

func TestReplicaIDFollowsPort(t *testing.T) {
	cfg, err := ParseConfig([]byte("version: 1\ngateway:\n  listen_port: 50053\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Gateway.ReplicaID != "replica-50053" {
		t.Errorf("ReplicaID = %q, want replica-50053", cfg.Gateway.ReplicaID)
	}
	if cfg.Gateway.AdvertiseAddr != "localhost:50053" {
		t.Errorf("AdvertiseAddr = %q", cfg.Gateway.AdvertiseAddr)
	}
}

func TestPostgresDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("version: 1\npostgres:\n  host: db\n  user: edge\n  database: edgegate\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if !cfg.Postgres.Enabled() {
		t.Fatal("postgres should be enabled when host is set")
	}
	if cfg.Postgres.Port != 5432 || cfg.Postgres.SSLMode != "disable" {
		t.Errorf("postgres defaults not applied: %+v", cfg.Postgres)
	}
	if Default().Postgres.Enabled() {
		t.Error("postgres should be disabled by default")
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "bad version",
			yaml:    "version: 2\n",
			wantErr: "unsupported config version",
		},
		{
			name:    "negative attempts",
			yaml:    "version: 1\nclient:\n  max_attempts: -1\n",
			wantErr: "max_attempts must be positive",
		},
		{
			name:    "negative timeout",
			yaml:    "version: 1\nclient:\n  per_attempt_timeout_ms: -5\n",
			wantErr: "per_attempt_timeout_ms must be positive",
		},
		{
			name:    "negative backoff",
			yaml:    "version: 1\nclient:\n  attempt_backoff_ms: -5\n",
			wantErr: "attempt_backoff_ms cannot be negative",
		},
		{
			name:    "duplicate replica",
			yaml:    "version: 1\nclient:\n  replica_addresses: [a:1, a:1]\n",
			wantErr: "duplicate replica address",
		},
		{
			name:    "empty replica",
			yaml:    "version: 1\nclient:\n  replica_addresses: [\"a:1\", \" \"]\n",
			wantErr: "replica_addresses[1] is empty",
		},
		{
			name:    "port out of range",
			yaml:    "version: 1\ngateway:\n  listen_port: 70000\n",
			wantErr: "out of range",
		},
		{
			name:    "negative pool",
			yaml:    "version: 1\ngateway:\n  worker_pool_size: -2\n",
			wantErr: "worker_pool_size must be positive",
		},
		{
			name:    "discover without etcd",
			yaml:    "version: 1\nclient:\n  discover_from_etcd: true\n",
			wantErr: "requires at least one etcd endpoint",
		},
		{
			name:    "postgres without database",
			yaml:    "version: 1\npostgres:\n  host: db\n",
			wantErr: "postgres database is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := writeConfig(t, "version: [1\n")
	if _, err := LoadConfig(path); err == nil || !strings.Contains(err.Error(), "failed to parse") {
		t.Errorf("expected parse error, got %v", err)
	}
}
