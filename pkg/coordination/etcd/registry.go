package etcd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"taskagent/pkg/coordination"
	"taskagent/pkg/metrics"
)

const (
	// KeyPrefix is where agents register themselves.
	KeyPrefix = "/taskagent/agents/"

	DefaultTTL = 15
)

var errKeepAliveClosed = errors.New("lease keepalive channel closed")

// Registry keeps an agent key alive in etcd under a lease. If the agent
// dies, the lease expires and the key disappears with it.
type Registry struct {
	client     *clientv3.Client
	kv         clientv3.KV
	lease      clientv3.Lease
	ttl        int64
	retryDelay time.Duration
	logger     *zap.Logger
}

var _ coordination.Registrar = (*Registry)(nil)

// NewRegistry connects to etcd. ttl is the lease TTL in seconds.
func NewRegistry(endpoints []string, ttl int, logger *zap.Logger) (*Registry, error) {
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
		Logger:      logger.Named("etcd-client"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	r := newRegistry(cli.KV, cli.Lease, ttl, logger)
	r.client = cli
	return r, nil
}

func newRegistry(kv clientv3.KV, lease clientv3.Lease, ttl int, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		kv:         kv,
		lease:      lease,
		ttl:        int64(ttl),
		retryDelay: time.Duration(ttl) * time.Second / 3,
		logger:     logger,
	}
}

func (r *Registry) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Run registers the agent and renews the lease until ctx is cancelled. A lost
// lease is re-acquired after a short delay. The key is revoked on return.
func (r *Registry) Run(ctx context.Context, info coordination.AgentInfo) error {
	value, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal agent info: %w", err)
	}
	key := KeyPrefix + info.ID

	for {
		err := r.hold(ctx, key, string(value))
		if ctx.Err() != nil {
			return nil
		}
		r.logger.Warn("agent registration lost, retrying",
			zap.String("key", key),
			zap.Duration("retry_in", r.retryDelay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.retryDelay):
		}
	}
}

// hold performs one grant/put/keepalive cycle and blocks while it lasts.
func (r *Registry) hold(ctx context.Context, key, value string) error {
	grant, err := r.lease.Grant(ctx, r.ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	defer r.revoke(grant.ID)

	if _, err := r.kv.Put(ctx, key, value, clientv3.WithLease(grant.ID)); err != nil {
		return fmt.Errorf("failed to put agent key: %w", err)
	}

	ch, err := r.lease.KeepAlive(ctx, grant.ID)
	if err != nil {
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}
	r.logger.Info("agent registered", zap.String("key", key), zap.Int64("ttl", r.ttl))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-ch:
			if !ok || resp == nil {
				return errKeepAliveClosed
			}
			metrics.HeartbeatsSent.Inc()
		}
	}
}

func (r *Registry) revoke(id clientv3.LeaseID) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := r.lease.Revoke(ctx, id); err != nil {
		r.logger.Debug("failed to revoke lease", zap.Error(err))
	}
}

// Agents lists every registered agent. Malformed entries are skipped.
func (r *Registry) Agents(ctx context.Context) ([]coordination.AgentInfo, error) {
	resp, err := r.kv.Get(ctx, KeyPrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}

	agents := make([]coordination.AgentInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info coordination.AgentInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			r.logger.Debug("skipping malformed agent entry", zap.ByteString("key", kv.Key))
			continue
		}
		agents = append(agents, info)
	}
	return agents, nil
}
