// Package gatewayconfig handles command-line flags and config file loading
// for the gateway process, returning a GatewayServerConfig.
package gatewayconfig

import (
	"flag"
	"fmt"
	"os"

	"github.com/xiaonanln/edgegate/config"
	"github.com/xiaonanln/edgegate/gateway/gatewayserver"
	"github.com/xiaonanln/edgegate/util/logger"
)

// fileFlags may be combined with --config; every other flag may not
var fileFlags = map[string]bool{
	"config":      true,
	"replica-id":  true,
	"listen-port": true,
	"log-level":   true,
}

// Loader handles parsing of command-line flags and config file loading.
// It can be instantiated with a custom FlagSet for testing.
type Loader struct {
	fs            *flag.FlagSet
	configPath    *string
	replicaID     *string
	listenPort    *int
	advertiseAddr *string
	kernelPath    *string
	kernelRunLog  *string
	poolSize      *int
	metricsAddr   *string
	etcdAddr      *string
	etcdPrefix    *string
	logLevel      *string
}

// NewLoader creates a new Loader with flags registered on the provided FlagSet.
// If fs is nil, the default flag.CommandLine is used.
func NewLoader(fs *flag.FlagSet) *Loader {
	if fs == nil {
		fs = flag.CommandLine
	}
	l := &Loader{fs: fs}
	l.configPath = fs.String("config", "", "Path to YAML config file")
	l.replicaID = fs.String("replica-id", "", "Replica ID (defaults to replica-<port>)")
	l.listenPort = fs.Int("listen-port", config.DefaultListenPort, "gRPC listen port")
	l.advertiseAddr = fs.String("advertise", "", "Address published in etcd (defaults to localhost:<port>; cannot be used with --config)")
	l.kernelPath = fs.String("kernel", "", "Edge kernel executable (defaults to $"+config.KernelPathEnv+" or ../Parallel/edge_sobel; cannot be used with --config)")
	l.kernelRunLog = fs.String("kernel-run-log", "", "Append-only kernel run log (cannot be used with --config)")
	l.poolSize = fs.Int("pool-size", config.DefaultWorkerPoolSize, "Number of concurrent compute operations (cannot be used with --config)")
	l.metricsAddr = fs.String("http-listen", "", "HTTP listen address for /metrics (cannot be used with --config)")
	l.etcdAddr = fs.String("etcd", "", "Etcd address to register with (optional, cannot be used with --config)")
	l.etcdPrefix = fs.String("etcd-prefix", config.DefaultEtcdPrefix, "Etcd key prefix (cannot be used with --config)")
	l.logLevel = fs.String("log-level", "info", "Log level: debug, info, warn, error")
	return l
}

// Load parses the flags (if not already parsed) and returns a GatewayServerConfig.
// When --config is provided, only --replica-id, --listen-port and --log-level may
// accompany it; they override the file. Without --config the flags are used directly.
// The selected log level becomes the default for new loggers.
func (l *Loader) Load(args []string) (*gatewayserver.GatewayServerConfig, error) {
	if !l.fs.Parsed() {
		if err := l.fs.Parse(args); err != nil {
			return nil, fmt.Errorf("failed to parse flags: %w", err)
		}
	}

	level, err := logger.ParseLevel(*l.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}
	logger.SetDefaultLevel(level)

	set := make(map[string]bool)
	l.fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var cfg *config.Config
	if *l.configPath != "" {
		for name := range set {
			if !fileFlags[name] {
				return nil, fmt.Errorf("--%s cannot be used with --config; configure in config file instead", name)
			}
		}

		cfg, err = config.LoadConfig(*l.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		if set["listen-port"] {
			// identities derived from the file's port follow the override
			g := &cfg.Gateway
			if g.ReplicaID == fmt.Sprintf("replica-%d", g.ListenPort) {
				g.ReplicaID = ""
			}
			if g.AdvertiseAddr == fmt.Sprintf("localhost:%d", g.ListenPort) {
				g.AdvertiseAddr = ""
			}
			g.ListenPort = *l.listenPort
		}
	} else {
		cfg = &config.Config{
			Version: 1,
			Gateway: config.GatewayConfig{
				ListenPort:           *l.listenPort,
				AdvertiseAddr:        *l.advertiseAddr,
				KernelExecutablePath: *l.kernelPath,
				KernelRunLog:         *l.kernelRunLog,
				WorkerPoolSize:       *l.poolSize,
				MetricsAddr:          *l.metricsAddr,
			},
			Etcd: config.EtcdConfig{Prefix: *l.etcdPrefix},
		}
		if *l.etcdAddr != "" {
			cfg.Etcd.Endpoints = []string{*l.etcdAddr}
		}
	}
	if *l.replicaID != "" {
		cfg.Gateway.ReplicaID = *l.replicaID
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	g := cfg.Gateway
	return &gatewayserver.GatewayServerConfig{
		ListenAddress:        cfg.ListenAddress(),
		AdvertiseAddress:     g.AdvertiseAddr,
		ReplicaID:            g.ReplicaID,
		KernelPath:           g.KernelExecutablePath,
		KernelRunLog:         g.KernelRunLog,
		WorkerPoolSize:       g.WorkerPoolSize,
		MetricsListenAddress: g.MetricsAddr,
		EtcdAddress:          cfg.GetEtcdAddress(),
		EtcdPrefix:           cfg.Etcd.Prefix,
	}, nil
}

// Get is a convenience function that creates a Loader with default flags,
// parses os.Args[1:], and returns the GatewayServerConfig.
// It panics on error.
func Get() *gatewayserver.GatewayServerConfig {
	loader := NewLoader(nil)
	cfg, err := loader.Load(os.Args[1:])
	if err != nil {
		panic(fmt.Sprintf("Failed to load gateway config: %v", err))
	}
	return cfg
}
