package calltree

import (
	"fmt"
	"time"

	"github.com/ethpandaops/execution-calltree/pkg/rowbuffer"
)

// Config holds the call tree processor configuration.
type Config struct {
	// Maximum transactions reconstructed at once by ProcessTransactions and
	// the task worker.
	Concurrency int `yaml:"concurrency" default:"4"`

	// Trace acquisition retries
	FetchMaxRetries  uint64        `yaml:"fetchMaxRetries" default:"5"`
	FetchBaseBackoff time.Duration `yaml:"fetchBaseBackoff" default:"500ms"`
	FetchMaxBackoff  time.Duration `yaml:"fetchMaxBackoff" default:"10s"`
	// NodeWaitTimeout bounds the wait for a healthy node within one attempt.
	NodeWaitTimeout time.Duration `yaml:"nodeWaitTimeout" default:"30s"`

	// MemoryCapture requests memory snapshots along with the stack.
	MemoryCapture bool `yaml:"memoryCapture"`

	// Table receives flattened call frames when ClickHouse export is enabled.
	Table string `yaml:"table" default:"call_frame"`
	// Export batches rows from concurrent reconstructions into shared inserts.
	Export rowbuffer.Config `yaml:"export"`

	// Task queue settings
	TaskMaxRetry int           `yaml:"taskMaxRetry" default:"3"`
	TaskTimeout  time.Duration `yaml:"taskTimeout" default:"5m"`
}

func (c *Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}

	if c.FetchBaseBackoff <= 0 || c.FetchMaxBackoff < c.FetchBaseBackoff {
		return fmt.Errorf("fetch backoff must satisfy 0 < base (%s) <= max (%s)", c.FetchBaseBackoff, c.FetchMaxBackoff)
	}

	if c.NodeWaitTimeout <= 0 {
		return fmt.Errorf("nodeWaitTimeout must be positive")
	}

	if c.Table == "" {
		return fmt.Errorf("table is required")
	}

	if c.Export.MaxRows <= 0 || c.Export.FlushInterval <= 0 {
		return fmt.Errorf("export maxRows and flushInterval must be positive")
	}

	if c.TaskMaxRetry < 0 {
		return fmt.Errorf("taskMaxRetry must not be negative")
	}

	if c.TaskTimeout <= 0 {
		return fmt.Errorf("taskTimeout must be positive")
	}

	return nil
}
