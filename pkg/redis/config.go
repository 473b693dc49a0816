package redis

import (
	"fmt"
)

type Config struct {
	// Address is host:port or a redis:// URL.
	Address string `yaml:"address"`
	// Prefix namespaces every key and the task queues.
	Prefix string `yaml:"prefix"`
}

func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Prefix == "" {
		c.Prefix = "execution-calltree"
	}

	return nil
}
