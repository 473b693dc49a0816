package server

import (
	"fmt"
	"time"

	"github.com/ethpandaops/execution-calltree/pkg/cache"
	"github.com/ethpandaops/execution-calltree/pkg/clickhouse"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum"
	"github.com/ethpandaops/execution-calltree/pkg/processor"
	"github.com/ethpandaops/execution-calltree/pkg/redis"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

type Config struct {
	// MetricsAddr is the address to listen on for metrics.
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`
	// HealthCheckAddr is the address to listen on for healthcheck.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	// PProfAddr is the address to listen on for pprof.
	PProfAddr *string `yaml:"pprofAddr"`
	// APIAddr is the address to listen on for the API server.
	APIAddr *string `yaml:"apiAddr"`
	// LoggingLevel is the logging level to use.
	LoggingLevel string `yaml:"logging" default:"info"`
	// Ethereum is the execution node configuration.
	Ethereum ethereum.Config `yaml:"ethereum"`
	// Storage is where raw traces are persisted.
	Storage storage.Config `yaml:"storage"`
	// Redis backs the task queue and the call tree cache.
	Redis *redis.Config `yaml:"redis"`
	// Cache is the call tree cache configuration.
	Cache cache.Config `yaml:"cache"`
	// ClickHouse receives flattened call frames when enabled.
	ClickHouse clickhouse.Config `yaml:"clickhouse"`
	// Processor is the processor configuration.
	Processor processor.Config `yaml:"processor"`
	// MemoryMonitor reports process memory usage.
	MemoryMonitor MemoryMonitorConfig `yaml:"memoryMonitor"`
	// ShutdownTimeout is the timeout for shutting down the server.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

// MemoryMonitorConfig configures the periodic memory report.
type MemoryMonitorConfig struct {
	Enabled             bool          `yaml:"enabled" default:"true"`
	Interval            time.Duration `yaml:"interval" default:"1m"`
	WarningThresholdMB  uint64        `yaml:"warningThresholdMB" default:"2048"`
	CriticalThresholdMB uint64        `yaml:"criticalThresholdMB" default:"4096"`
}

func (c *MemoryMonitorConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	if c.CriticalThresholdMB < c.WarningThresholdMB {
		return fmt.Errorf("criticalThresholdMB must not be below warningThresholdMB")
	}

	return nil
}

func (c *Config) Validate() error {
	if c.Redis == nil {
		return fmt.Errorf("redis configuration is required")
	}

	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("invalid redis configuration: %w", err)
	}

	if err := c.Ethereum.Validate(); err != nil {
		return fmt.Errorf("invalid ethereum configuration: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage configuration: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache configuration: %w", err)
	}

	if err := c.ClickHouse.Validate(); err != nil {
		return fmt.Errorf("invalid clickhouse configuration: %w", err)
	}

	if err := c.Processor.Validate(); err != nil {
		return fmt.Errorf("invalid processor configuration: %w", err)
	}

	if err := c.MemoryMonitor.Validate(); err != nil {
		return fmt.Errorf("invalid memory monitor configuration: %w", err)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdownTimeout must be positive")
	}

	return nil
}
