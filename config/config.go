package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenPort          = 50052
	DefaultReplicaAddress      = "localhost:50052"
	DefaultMaxAttempts         = 3
	DefaultPerAttemptTimeoutMs = 1000
	DefaultWorkerPoolSize      = 4
	DefaultEtcdPrefix          = "/edgegate"

	// KernelPathEnv overrides the default kernel executable path
	KernelPathEnv = "EDGE_SOBEL_PATH"
)

// DefaultKernelPath returns $EDGE_SOBEL_PATH, or ../Parallel/edge_sobel when unset
func DefaultKernelPath() string {
	if p := os.Getenv(KernelPathEnv); p != "" {
		return p
	}
	return filepath.Join("..", "Parallel", "edge_sobel")
}

// GatewayConfig holds the settings of one gateway replica
type GatewayConfig struct {
	ListenPort           int    `yaml:"listen_port"`
	ReplicaID            string `yaml:"replica_id"`             // defaults to replica-<port>
	AdvertiseAddr        string `yaml:"advertise_addr"`         // address registered in etcd; defaults to localhost:<port>
	KernelExecutablePath string `yaml:"kernel_executable_path"` // defaults to DefaultKernelPath()
	KernelRunLog         string `yaml:"kernel_run_log"`         // optional append-only text log of kernel runs
	WorkerPoolSize       int    `yaml:"worker_pool_size"`
	MetricsAddr          string `yaml:"metrics_addr"` // optional HTTP address for /metrics
}

// ClientConfig holds the dispatcher settings
type ClientConfig struct {
	ReplicaAddresses    []string `yaml:"replica_addresses"` // ordered; order is failover priority
	MaxAttempts         int      `yaml:"max_attempts"`
	PerAttemptTimeoutMs int      `yaml:"per_attempt_timeout_ms"`
	AttemptBackoffMs    int      `yaml:"attempt_backoff_ms"` // pause between attempts, 0 = none
	OutcomeLog          string   `yaml:"outcome_log"`        // CSV outcome log path
	DiscoverFromEtcd    bool     `yaml:"discover_from_etcd"` // build the directory from etcd instead of replica_addresses
}

// EtcdConfig holds etcd-specific configuration
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix"`
}

// PostgresConfig holds PostgreSQL connection configuration for the outcome sink
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether a PostgreSQL sink is configured
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// Config is the root configuration structure
type Config struct {
	Version  int            `yaml:"version"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Client   ClientConfig   `yaml:"client"`
	Etcd     EtcdConfig     `yaml:"etcd"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// Default returns a configuration with every documented default applied
func Default() *Config {
	cfg := &Config{Version: 1}
	cfg.ApplyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file, applies defaults and validates it
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML bytes, applies defaults and validates the result
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills zero-valued fields with their defaults
func (c *Config) ApplyDefaults() {
	g := &c.Gateway
	if g.ListenPort == 0 {
		g.ListenPort = DefaultListenPort
	}
	if g.ReplicaID == "" {
		g.ReplicaID = fmt.Sprintf("replica-%d", g.ListenPort)
	}
	if g.AdvertiseAddr == "" {
		g.AdvertiseAddr = fmt.Sprintf("localhost:%d", g.ListenPort)
	}
	if g.KernelExecutablePath == "" {
		g.KernelExecutablePath = DefaultKernelPath()
	}
	if g.WorkerPoolSize == 0 {
		g.WorkerPoolSize = DefaultWorkerPoolSize
	}

	cl := &c.Client
	if len(cl.ReplicaAddresses) == 0 && !cl.DiscoverFromEtcd {
		cl.ReplicaAddresses = []string{DefaultReplicaAddress}
	}
	if cl.MaxAttempts == 0 {
		cl.MaxAttempts = DefaultMaxAttempts
	}
	if cl.PerAttemptTimeoutMs == 0 {
		cl.PerAttemptTimeoutMs = DefaultPerAttemptTimeoutMs
	}

	if c.Etcd.Prefix == "" {
		c.Etcd.Prefix = DefaultEtcdPrefix
	}
	if c.Postgres.Enabled() {
		if c.Postgres.Port == 0 {
			c.Postgres.Port = 5432
		}
		if c.Postgres.SSLMode == "" {
			c.Postgres.SSLMode = "disable"
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Version != 1 {
		return fmt.Errorf("unsupported config version: %d (expected 1)", c.Version)
	}

	g := c.Gateway
	if g.ListenPort < 0 || g.ListenPort > 65535 {
		return fmt.Errorf("gateway listen_port %d out of range", g.ListenPort)
	}
	if g.WorkerPoolSize < 1 {
		return fmt.Errorf("gateway worker_pool_size must be positive, got %d", g.WorkerPoolSize)
	}

	cl := c.Client
	if cl.MaxAttempts < 1 {
		return fmt.Errorf("client max_attempts must be positive, got %d", cl.MaxAttempts)
	}
	if cl.PerAttemptTimeoutMs < 1 {
		return fmt.Errorf("client per_attempt_timeout_ms must be positive, got %d", cl.PerAttemptTimeoutMs)
	}
	if cl.AttemptBackoffMs < 0 {
		return fmt.Errorf("client attempt_backoff_ms cannot be negative, got %d", cl.AttemptBackoffMs)
	}
	seen := make(map[string]bool)
	for i, addr := range cl.ReplicaAddresses {
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("client replica_addresses[%d] is empty", i)
		}
		if seen[addr] {
			return fmt.Errorf("duplicate replica address: %s", addr)
		}
		seen[addr] = true
	}
	if cl.DiscoverFromEtcd && len(c.Etcd.Endpoints) == 0 {
		return fmt.Errorf("client discover_from_etcd requires at least one etcd endpoint")
	}

	if c.Postgres.Enabled() && c.Postgres.Database == "" {
		return fmt.Errorf("postgres database is required when postgres host is set")
	}
	return nil
}

// ListenAddress returns the gateway's gRPC listen address
func (c *Config) ListenAddress() string {
	return fmt.Sprintf(":%d", c.Gateway.ListenPort)
}

// PerAttemptTimeout returns the per-attempt deadline
func (c *Config) PerAttemptTimeout() time.Duration {
	return time.Duration(c.Client.PerAttemptTimeoutMs) * time.Millisecond
}

// AttemptBackoff returns the pause before the second attempt
func (c *Config) AttemptBackoff() time.Duration {
	return time.Duration(c.Client.AttemptBackoffMs) * time.Millisecond
}

// GetEtcdAddress returns the first etcd endpoint address, or "" when etcd is not configured
func (c *Config) GetEtcdAddress() string {
	if len(c.Etcd.Endpoints) > 0 {
		return c.Etcd.Endpoints[0]
	}
	return ""
}
