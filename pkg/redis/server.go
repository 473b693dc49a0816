package redis

import (
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Options turns the configured address into go-redis options. Full
// redis:// URLs may carry credentials and a database number.
func Options(config *Config) (*redis.Options, error) {
	if strings.HasPrefix(config.Address, "redis://") || strings.HasPrefix(config.Address, "rediss://") {
		opts, err := redis.ParseURL(config.Address)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}

		return opts, nil
	}

	return &redis.Options{Addr: config.Address}, nil
}

// New creates a new Redis client from configuration
func New(config *Config) (*redis.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	opts, err := Options(config)
	if err != nil {
		return nil, err
	}

	return redis.NewClient(opts), nil
}

// AsynqOpt returns the connection options for the task queue, sharing the
// address of the cache client.
func AsynqOpt(config *Config) (asynq.RedisClientOpt, error) {
	opts, err := Options(config)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
}
