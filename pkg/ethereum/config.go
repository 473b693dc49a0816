package ethereum

import (
	"fmt"

	"github.com/creasty/defaults"

	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
)

type Config struct {
	// Execution nodes to acquire traces from. May be empty when only
	// persisted traces are reconstructed.
	Execution []*execution.Config `yaml:"execution"`
	// Override network name for custom networks (bypasses networkMap)
	OverrideNetworkName *string `yaml:"overrideNetworkName"`
}

func (c *Config) Validate() error {
	names := make(map[string]struct{}, len(c.Execution))

	for i, exec := range c.Execution {
		// Nodes are decoded after the top-level defaults ran.
		if err := defaults.Set(exec); err != nil {
			return fmt.Errorf("failed to apply defaults to execution configuration at index %d: %w", i, err)
		}

		if err := exec.Validate(); err != nil {
			return fmt.Errorf("invalid execution configuration at index %d: %w", i, err)
		}

		if _, dup := names[exec.Name]; dup {
			return fmt.Errorf("duplicate execution node name %q", exec.Name)
		}

		names[exec.Name] = struct{}{}
	}

	return nil
}
