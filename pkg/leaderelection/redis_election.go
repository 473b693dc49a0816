package leaderelection

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/common"
)

var (
	renewScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)
)

// RedisElector holds leadership through a Redis key set with NX and a TTL
// that the leader keeps renewing.
type RedisElector struct {
	client *redis.Client
	log    logrus.FieldLogger
	config *Config
	nodeID string
	key    string

	mu       sync.RWMutex
	isLeader bool
	started  bool
	stopped  bool

	callbacksMu sync.RWMutex
	callbacks   []LeadershipCallback

	stop chan struct{}
	wg   sync.WaitGroup
}

var _ Elector = (*RedisElector)(nil)

func NewRedisElector(client *redis.Client, log logrus.FieldLogger, key string, config *Config) (*RedisElector, error) {
	nodeID := config.NodeID
	if nodeID == "" {
		b := make([]byte, 8)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate node id: %w", err)
		}

		nodeID = hex.EncodeToString(b)
	}

	return &RedisElector{
		client: client,
		log:    log.WithFields(logrus.Fields{"component": "leader-election", "node_id": nodeID}),
		config: config,
		nodeID: nodeID,
		key:    key,
		stop:   make(chan struct{}),
	}, nil
}

// NodeID returns this replica's ID.
func (e *RedisElector) NodeID() string {
	return e.nodeID
}

func (e *RedisElector) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil
	}

	if e.stopped {
		return fmt.Errorf("leader elector for %s was stopped", e.key)
	}

	e.started = true

	common.LeaderElectionStatus.WithLabelValues(e.nodeID).Set(0)

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		e.run(ctx)
	}()

	e.log.WithField("key", e.key).Info("Started leader election")

	return nil
}

// Stop ends the election loop and releases the lock if held.
func (e *RedisElector) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.stopped || !e.started {
		e.mu.Unlock()

		return nil
	}

	e.stopped = true
	e.mu.Unlock()

	close(e.stop)
	e.wg.Wait()

	if !e.IsLeader() {
		return nil
	}

	if err := releaseScript.Run(ctx, e.client, []string{e.key}, e.nodeID).Err(); err != nil {
		common.LeaderElectionErrors.WithLabelValues(e.nodeID, "release").Inc()

		return fmt.Errorf("failed to release leadership: %w", err)
	}

	e.setLeader(ctx, false)

	return nil
}

func (e *RedisElector) IsLeader() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.isLeader
}

func (e *RedisElector) OnLeadershipChange(callback LeadershipCallback) {
	e.callbacksMu.Lock()
	defer e.callbacksMu.Unlock()

	e.callbacks = append(e.callbacks, callback)
}

func (e *RedisElector) LeaderID(ctx context.Context) (string, error) {
	id, err := e.client.Get(ctx, e.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("failed to read leader: %w", err)
	}

	return id, nil
}

func (e *RedisElector) run(ctx context.Context) {
	ticker := time.NewTicker(e.config.RenewalInterval)
	defer ticker.Stop()

	e.step(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case <-ticker.C:
			e.step(ctx)
		}
	}
}

// step renews the lock when leading and tries to take it otherwise.
func (e *RedisElector) step(ctx context.Context) {
	if e.IsLeader() {
		renewed, err := renewScript.Run(ctx, e.client, []string{e.key}, e.nodeID, e.config.TTL.Milliseconds()).Int64()
		if err != nil {
			common.LeaderElectionErrors.WithLabelValues(e.nodeID, "renew").Inc()
			e.log.WithError(err).Warn("Failed to renew leadership")
		}

		if err != nil || renewed != 1 {
			e.setLeader(ctx, false)
		}

		return
	}

	acquired, err := e.client.SetNX(ctx, e.key, e.nodeID, e.config.TTL).Result()
	if err != nil {
		common.LeaderElectionErrors.WithLabelValues(e.nodeID, "acquire").Inc()
		e.log.WithError(err).Warn("Failed to acquire leadership")

		return
	}

	if acquired {
		e.setLeader(ctx, true)
	}
}

func (e *RedisElector) setLeader(ctx context.Context, leader bool) {
	e.mu.Lock()
	changed := e.isLeader != leader
	e.isLeader = leader
	e.mu.Unlock()

	if !changed {
		return
	}

	if leader {
		common.LeaderElectionStatus.WithLabelValues(e.nodeID).Set(1)
		common.LeaderElectionTransitions.WithLabelValues(e.nodeID, "gained").Inc()
		e.log.Info("Gained leadership")
	} else {
		common.LeaderElectionStatus.WithLabelValues(e.nodeID).Set(0)
		common.LeaderElectionTransitions.WithLabelValues(e.nodeID, "lost").Inc()
		e.log.Info("Lost leadership")
	}

	e.callbacksMu.RLock()
	callbacks := append([]LeadershipCallback(nil), e.callbacks...)
	e.callbacksMu.RUnlock()

	for _, cb := range callbacks {
		cb(ctx, leader)
	}
}
