package leaderelection

import (
	"context"
	"fmt"
	"time"
)

// LeadershipCallback runs synchronously on every leadership change and must
// return quickly.
type LeadershipCallback func(ctx context.Context, isLeader bool)

// Elector elects a single leader among replicas sharing a key.
type Elector interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsLeader() bool
	OnLeadershipChange(callback LeadershipCallback)
	// LeaderID returns the ID of the current leader, or "" when there is none.
	LeaderID(ctx context.Context) (string, error)
}

type Config struct {
	Enabled bool `yaml:"enabled" default:"true"`
	// TTL of the leader lock.
	TTL time.Duration `yaml:"ttl" default:"10s"`
	// RenewalInterval must be shorter than TTL.
	RenewalInterval time.Duration `yaml:"renewalInterval" default:"3s"`
	// NodeID identifies this replica; a random ID is used when empty.
	NodeID string `yaml:"nodeId"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.TTL <= 0 || c.RenewalInterval <= 0 {
		return fmt.Errorf("leader election ttl and renewalInterval must be positive")
	}

	if c.RenewalInterval >= c.TTL {
		return fmt.Errorf("leader election renewalInterval (%s) must be less than ttl (%s)", c.RenewalInterval, c.TTL)
	}

	return nil
}
