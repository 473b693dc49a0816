package storage

import "errors"

// Config configures where acquired traces are persisted.
type Config struct {
	// Dir is the root directory; each transaction gets its own subdirectory.
	Dir string `yaml:"dir" default:"./traces"`
}

func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("dir is required")
	}

	return nil
}
