// Package cache keeps reconstructed call trees in Redis so repeated lookups
// skip decoding and reconstruction.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/common"
	"github.com/ethpandaops/execution-calltree/pkg/evm"
)

type Config struct {
	Enabled bool          `yaml:"enabled" default:"true"`
	TTL     time.Duration `yaml:"ttl" default:"1h"`
}

func (c *Config) Validate() error {
	if c.Enabled && c.TTL <= 0 {
		return errors.New("ttl must be positive")
	}

	return nil
}

// TreeCache stores call trees as JSON keyed by transaction hash.
type TreeCache struct {
	log    logrus.FieldLogger
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func New(log logrus.FieldLogger, client *redis.Client, prefix string, cfg *Config) *TreeCache {
	return &TreeCache{
		log:    log.WithField("component", "calltree_cache"),
		client: client,
		prefix: prefix,
		ttl:    cfg.TTL,
	}
}

func (c *TreeCache) key(hash string) string {
	return fmt.Sprintf("%s:calltree:%s", c.prefix, hash)
}

// Get returns the cached tree for hash. A miss is (nil, false, nil).
func (c *TreeCache) Get(ctx context.Context, hash string) (*evm.CallFrame, bool, error) {
	data, err := c.client.Get(ctx, c.key(hash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			common.CacheRequests.WithLabelValues("miss").Inc()

			return nil, false, nil
		}

		common.CacheRequests.WithLabelValues("error").Inc()

		return nil, false, fmt.Errorf("failed to read cached tree: %w", err)
	}

	var root evm.CallFrame
	if err := json.Unmarshal(data, &root); err != nil {
		common.CacheRequests.WithLabelValues("error").Inc()

		// A stale encoding is treated as a miss and dropped.
		c.log.WithError(err).WithField("tx_hash", hash).Warn("Discarding undecodable cached tree")

		if delErr := c.client.Del(ctx, c.key(hash)).Err(); delErr != nil {
			c.log.WithError(delErr).Debug("Failed to delete cached tree")
		}

		return nil, false, nil
	}

	common.CacheRequests.WithLabelValues("hit").Inc()

	return &root, true, nil
}

// Set stores root under hash for the configured TTL.
func (c *TreeCache) Set(ctx context.Context, hash string, root *evm.CallFrame) error {
	data, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("failed to encode tree: %w", err)
	}

	if err := c.client.Set(ctx, c.key(hash), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache tree: %w", err)
	}

	return nil
}

// Delete drops the cached tree for hash, if any.
func (c *TreeCache) Delete(ctx context.Context, hash string) error {
	return c.client.Del(ctx, c.key(hash)).Err()
}
