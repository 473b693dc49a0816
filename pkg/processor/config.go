package processor

import (
	"fmt"
	"time"

	"github.com/ethpandaops/execution-calltree/pkg/leaderelection"
	"github.com/ethpandaops/execution-calltree/pkg/processor/calltree"
)

// Config holds the processor manager configuration.
type Config struct {
	Worker WorkerConfig `yaml:"worker"`

	// MaxProcessQueueSize rejects new tasks while the queue holds this many
	// unfinished tasks. 0 disables the check.
	MaxProcessQueueSize int `yaml:"maxProcessQueueSize" default:"1000"`

	// QueueMonitorInterval is how often the leader publishes queue metrics.
	QueueMonitorInterval time.Duration `yaml:"queueMonitorInterval" default:"30s"`

	LeaderElection leaderelection.Config `yaml:"leaderElection"`

	Calltree calltree.Config `yaml:"calltree"`
}

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Enabled     bool `yaml:"enabled" default:"true"`
	Concurrency int  `yaml:"concurrency" default:"20"`
}

func (c *Config) Validate() error {
	if c.Worker.Enabled && c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive, got %d", c.Worker.Concurrency)
	}

	if c.MaxProcessQueueSize < 0 {
		return fmt.Errorf("maxProcessQueueSize must not be negative")
	}

	if c.QueueMonitorInterval <= 0 {
		return fmt.Errorf("queueMonitorInterval must be positive")
	}

	if err := c.LeaderElection.Validate(); err != nil {
		return fmt.Errorf("invalid leader election config: %w", err)
	}

	if err := c.Calltree.Validate(); err != nil {
		return fmt.Errorf("invalid calltree config: %w", err)
	}

	return nil
}
