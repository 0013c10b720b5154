// Package registry publishes gateway replicas in etcd and reads them back as an
// ordered replica list for dispatchers.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xiaonanln/edgegate/util/logger"
	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	DefaultPrefix = "/edgegate"
	LeaseTTL      = 15 // seconds
	dialTimeout   = 5 * time.Second
	probeTimeout  = 2 * time.Second
)

// Registry manages one etcd connection and at most one replica registration
type Registry struct {
	client    *clientv3.Client
	endpoints []string
	prefix    string
	logger    *logger.Logger

	mu           sync.Mutex
	leaseID      clientv3.LeaseID
	registeredID string
	keepCancel   context.CancelFunc
}

// New creates a Registry. An empty prefix selects DefaultPrefix.
func New(endpoints []string, prefix string) *Registry {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Registry{
		endpoints: endpoints,
		prefix:    strings.TrimSuffix(prefix, "/"),
		logger:    logger.NewLogger("Registry"),
	}
}

// Connect dials etcd and probes it once; an unreachable cluster is an error
func (r *Registry) Connect(ctx context.Context) error {
	r.logger.Infof("Connecting to etcd at %v", r.endpoints)

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   r.endpoints,
		DialTimeout: dialTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to etcd: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if _, err := cli.Get(probeCtx, r.prefix+"/probe"); err != nil {
		cli.Close()
		return fmt.Errorf("etcd at %v not reachable: %w", r.endpoints, err)
	}

	r.client = cli
	return nil
}

// Close stops keep-alives and closes the client. A registration left behind
// expires after LeaseTTL; call Deregister first to remove it immediately.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.keepCancel != nil {
		r.keepCancel()
		r.keepCancel = nil
	}
	r.mu.Unlock()

	if r.client != nil {
		r.logger.Infof("Closing etcd connection")
		err := r.client.Close()
		r.client = nil
		return err
	}
	return nil
}

// GatewaysPrefix returns the key prefix under which replicas are registered
func (r *Registry) GatewaysPrefix() string {
	return r.prefix + "/gateways/"
}

// Register publishes replicaID -> address under a lease kept alive until
// Deregister or Close. Registering the same id twice is a no-op.
func (r *Registry) Register(ctx context.Context, replicaID, address string) error {
	if r.client == nil {
		return fmt.Errorf("etcd client not connected")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.registeredID != "" {
		if r.registeredID != replicaID {
			return fmt.Errorf("replica already registered as %s, cannot register %s", r.registeredID, replicaID)
		}
		return nil
	}

	lease, err := r.client.Grant(ctx, LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}

	key := r.GatewaysPrefix() + replicaID
	if _, err := r.client.Put(ctx, key, address, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register replica: %w", err)
	}

	keepCtx, keepCancel := context.WithCancel(context.Background())
	keepAliveCh, err := r.client.KeepAlive(keepCtx, lease.ID)
	if err != nil {
		keepCancel()
		return fmt.Errorf("failed to keep alive lease: %w", err)
	}

	r.leaseID = lease.ID
	r.registeredID = replicaID
	r.keepCancel = keepCancel
	r.logger.Infof("Registered replica %s at %s with lease %d", replicaID, address, lease.ID)

	go func() {
		for ka := range keepAliveCh {
			if ka != nil {
				r.logger.Debugf("Keep-alive for lease %d, TTL %d", ka.ID, ka.TTL)
			}
		}
		r.logger.Debugf("Keep-alive stopped for lease %d", lease.ID)
	}()
	return nil
}

// Deregister revokes the lease, which removes the replica's key
func (r *Registry) Deregister(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil || r.registeredID == "" {
		return nil
	}
	if r.keepCancel != nil {
		r.keepCancel()
		r.keepCancel = nil
	}

	if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
		r.logger.Warnf("Failed to revoke lease %d: %v", r.leaseID, err)
	}
	key := r.GatewaysPrefix() + r.registeredID
	if _, err := r.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("failed to deregister replica: %w", err)
	}

	r.logger.Infof("Deregistered replica %s", r.registeredID)
	r.leaseID = 0
	r.registeredID = ""
	return nil
}

// Snapshot returns the registered replica addresses ordered by replica id.
// The order is stable so every dispatcher derives the same failover priority.
func (r *Registry) Snapshot(ctx context.Context) ([]string, error) {
	if r.client == nil {
		return nil, fmt.Errorf("etcd client not connected")
	}

	resp, err := r.client.Get(ctx, r.GatewaysPrefix(), clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("failed to list replicas: %w", err)
	}

	kvs := resp.Kvs
	sort.SliceStable(kvs, func(i, j int) bool { return string(kvs[i].Key) < string(kvs[j].Key) })

	addrs := make([]string, 0, len(kvs))
	for _, kv := range kvs {
		addrs = append(addrs, string(kv.Value))
	}
	r.logger.Debugf("Snapshot found %d replicas", len(addrs))
	return addrs, nil
}
