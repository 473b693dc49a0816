package execution

import (
	"errors"
	"time"
)

// Config is the connection configuration of a single execution node.
type Config struct {
	// Name of the node, used in logs and metrics.
	Name string `yaml:"name"`
	// NodeAddress is the JSON-RPC endpoint.
	NodeAddress string `yaml:"nodeAddress"`
	// NodeHeaders are added to every request.
	NodeHeaders map[string]string `yaml:"nodeHeaders"`
	// TraceTimeout bounds a debug_traceTransaction call when the caller's
	// context has no deadline.
	TraceTimeout time.Duration `yaml:"traceTimeout" default:"60s"`
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}

	if c.NodeAddress == "" {
		return errors.New("nodeAddress is required")
	}

	if c.TraceTimeout < 0 {
		return errors.New("traceTimeout must not be negative")
	}

	return nil
}
