package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xiaonanln/edgegate/config"
	"github.com/xiaonanln/edgegate/dispatcher"
	"github.com/xiaonanln/edgegate/outcome"
	"github.com/xiaonanln/edgegate/registry"
	"github.com/xiaonanln/edgegate/util/logger"
	"github.com/xiaonanln/edgegate/util/postgres"
)

// DefaultOutcomeLog is where outcome rows go when neither flag nor config names a file
const DefaultOutcomeLog = "metrics.csv"

// options holds the persistent flags shared by every subcommand
type options struct {
	configPath  string
	replicas    []string
	maxAttempts int
	timeout     time.Duration
	backoff     time.Duration
	outcomeLog  string
	etcd        []string
	etcdPrefix  string
	logLevel    string
}

// newRootCmd builds the command tree. Each call returns an independent tree.
func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "edgeclient",
		Short:         "Send requests to edge gateway replicas with ordered failover",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogging(opts.logLevel)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to YAML config file (client, etcd and postgres sections)")
	pf.StringSliceVar(&opts.replicas, "replicas", nil, "Ordered replica addresses, e.g. localhost:50052,localhost:50053")
	pf.IntVar(&opts.maxAttempts, "max-attempts", config.DefaultMaxAttempts, "Attempts per request before giving up")
	pf.DurationVar(&opts.timeout, "timeout", config.DefaultPerAttemptTimeoutMs*time.Millisecond, "Deadline of each attempt")
	pf.DurationVar(&opts.backoff, "backoff", 0, "Pause before the second attempt, doubling after that (0 = none)")
	pf.StringVar(&opts.outcomeLog, "outcome-log", "", "CSV outcome log (default "+DefaultOutcomeLog+")")
	pf.StringSliceVar(&opts.etcd, "etcd", nil, "Etcd endpoints; when set, replicas are discovered from etcd")
	pf.StringVar(&opts.etcdPrefix, "etcd-prefix", config.DefaultEtcdPrefix, "Etcd key prefix")
	pf.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newPredictCmd(opts))
	rootCmd.AddCommand(newImageCmd(opts))
	rootCmd.AddCommand(newLoadgenCmd(opts))
	return rootCmd
}

// setupLogging applies level to the CLI's logrus output and to the library loggers
func setupLogging(level string) error {
	lvl, err := logger.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logger.SetDefaultLevel(lvl)

	llvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid --log-level: %w", err)
	}
	logrus.SetLevel(llvl)
	return nil
}

// resolveConfig merges the config file (or defaults) with explicitly set flags
func resolveConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	var cfg *config.Config
	if opts.configPath != "" {
		var err error
		cfg, err = config.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Default()
	}

	flags := cmd.Flags()
	if flags.Changed("replicas") && flags.Changed("etcd") {
		return nil, fmt.Errorf("--replicas and --etcd cannot be used together")
	}
	if flags.Changed("replicas") {
		cfg.Client.ReplicaAddresses = opts.replicas
		cfg.Client.DiscoverFromEtcd = false
	}
	if flags.Changed("etcd") {
		cfg.Etcd.Endpoints = opts.etcd
		cfg.Client.DiscoverFromEtcd = true
	}
	if flags.Changed("etcd-prefix") {
		cfg.Etcd.Prefix = opts.etcdPrefix
	}
	if flags.Changed("max-attempts") || opts.configPath == "" {
		cfg.Client.MaxAttempts = opts.maxAttempts
	}
	if flags.Changed("timeout") || opts.configPath == "" {
		cfg.Client.PerAttemptTimeoutMs = int(opts.timeout / time.Millisecond)
	}
	if flags.Changed("backoff") || opts.configPath == "" {
		cfg.Client.AttemptBackoffMs = int(opts.backoff / time.Millisecond)
	}
	if flags.Changed("outcome-log") {
		cfg.Client.OutcomeLog = opts.outcomeLog
	}
	if cfg.Client.OutcomeLog == "" {
		cfg.Client.OutcomeLog = DefaultOutcomeLog
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// session owns a dispatcher and the sinks behind it
type session struct {
	cfg        *config.Config
	dispatcher *dispatcher.Dispatcher
	closers    []func() error
}

// newSession builds the directory, the recorders and the dispatcher
func newSession(cmd *cobra.Command, opts *options) (*session, error) {
	cfg, err := resolveConfig(cmd, opts)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	s := &session{cfg: cfg}

	endpoints := cfg.Client.ReplicaAddresses
	if cfg.Client.DiscoverFromEtcd {
		endpoints, err = discoverReplicas(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}
	dir, err := dispatcher.NewDirectory(endpoints)
	if err != nil {
		return nil, err
	}

	recorder, err := s.openRecorders(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.dispatcher, err = dispatcher.New(dispatcher.Config{
		Directory:         dir,
		MaxAttempts:       cfg.Client.MaxAttempts,
		PerAttemptTimeout: cfg.PerAttemptTimeout(),
		AttemptBackoff:    cfg.AttemptBackoff(),
		Recorder:          recorder,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, s.dispatcher.Close)

	logrus.Debugf("directory %s, max attempts %d, per-attempt timeout %v",
		dir, cfg.Client.MaxAttempts, cfg.PerAttemptTimeout())
	return s, nil
}

func (s *session) openRecorders(ctx context.Context) (outcome.Recorder, error) {
	file, err := outcome.OpenFile(s.cfg.Client.OutcomeLog)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, file.Close)

	if !s.cfg.Postgres.Enabled() {
		return file, nil
	}

	pg := s.cfg.Postgres
	db, err := postgres.NewDB(&postgres.Config{
		Host:     pg.Host,
		Port:     pg.Port,
		User:     pg.User,
		Password: pg.Password,
		Database: pg.Database,
		SSLMode:  pg.SSLMode,
	})
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db.Close)

	store, err := postgres.NewOutcomeStore(ctx, db)
	if err != nil {
		return nil, err
	}
	logrus.Infof("recording outcomes to %s and postgres %s:%d/%s", file.Path(), pg.Host, pg.Port, pg.Database)
	return outcome.MultiRecorder{file, store}, nil
}

// Close releases everything in reverse order of acquisition
func (s *session) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func discoverReplicas(ctx context.Context, cfg *config.Config) ([]string, error) {
	reg := registry.New(cfg.Etcd.Endpoints, cfg.Etcd.Prefix)
	if err := reg.Connect(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}
	defer reg.Close()

	endpoints, err := reg.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list replicas: %w", err)
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no replicas registered under %s", reg.GatewaysPrefix())
	}
	logrus.Infof("discovered %d replicas from etcd: %v", len(endpoints), endpoints)
	return endpoints, nil
}
