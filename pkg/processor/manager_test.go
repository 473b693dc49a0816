package processor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-calltree/internal/testutil"
	"github.com/ethpandaops/execution-calltree/pkg/processor"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

const txHash = "0x5c504ed432cb51138bcf09aa5e8a410dd4a1e204ef84bfed1be16dfba1b22060"

func newLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return log
}

func testConfig(t *testing.T) *processor.Config {
	t.Helper()

	cfg := &processor.Config{}
	require.NoError(t, defaults.Set(cfg))

	cfg.Worker.Enabled = false
	cfg.LeaderElection.Enabled = false
	cfg.QueueMonitorInterval = 10 * time.Millisecond

	return cfg
}

func newManager(t *testing.T, cfg *processor.Config) *processor.Manager {
	t.Helper()

	client, mr := testutil.NewMiniredisClient(t)

	store, err := storage.New(newLogger(), &storage.Config{Dir: t.TempDir()})
	require.NoError(t, err)

	m, err := processor.NewManager(newLogger(), cfg, &processor.Dependencies{
		Store:       store,
		Redis:       client,
		AsynqOpt:    asynq.RedisClientOpt{Addr: mr.Addr()},
		RedisPrefix: "test",
	})
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	return m
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *processor.Config)
		expectErr bool
	}{
		{name: "defaults", mutate: func(*processor.Config) {}},
		{name: "worker without concurrency", mutate: func(c *processor.Config) { c.Worker.Concurrency = 0 }, expectErr: true},
		{
			name: "disabled worker ignores concurrency",
			mutate: func(c *processor.Config) {
				c.Worker.Enabled = false
				c.Worker.Concurrency = 0
			},
		},
		{name: "negative queue size", mutate: func(c *processor.Config) { c.MaxProcessQueueSize = -1 }, expectErr: true},
		{name: "zero monitor interval", mutate: func(c *processor.Config) { c.QueueMonitorInterval = 0 }, expectErr: true},
		{
			name:      "bad leader election",
			mutate:    func(c *processor.Config) { c.LeaderElection.RenewalInterval = c.LeaderElection.TTL },
			expectErr: true,
		},
		{name: "bad calltree config", mutate: func(c *processor.Config) { c.Calltree.Table = "" }, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &processor.Config{}
			require.NoError(t, defaults.Set(cfg))

			tt.mutate(cfg)

			if tt.expectErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestManager_Creation(t *testing.T) {
	m := newManager(t, testConfig(t))

	assert.Equal(t, "test:calltree:process", m.GetQueueName())
	assert.NotNil(t, m.Calltree())
}

func TestManager_StartStop(t *testing.T) {
	cfg := testConfig(t)
	cfg.LeaderElection.Enabled = true

	m := newManager(t, cfg)

	done := make(chan error, 1)

	go func() {
		done <- m.Start(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, m.Stop(context.Background()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	require.NoError(t, m.Stop(context.Background()))
}

func TestManager_StartReturnsOnContextCancel(t *testing.T) {
	m := newManager(t, testConfig(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		done <- m.Start(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestManager_Enqueue(t *testing.T) {
	tests := []struct {
		name      string
		info      *asynq.QueueInfo
		infoErr   error
		maxQueue  int
		expectErr error
	}{
		{
			name:     "below capacity",
			info:     &asynq.QueueInfo{Pending: 3, Active: 1},
			maxQueue: 10,
		},
		{
			name:      "at capacity",
			info:      &asynq.QueueInfo{Pending: 6, Active: 2, Scheduled: 1, Retry: 1},
			maxQueue:  10,
			expectErr: processor.ErrQueueFull,
		},
		{
			name:     "archived tasks do not count",
			info:     &asynq.QueueInfo{Archived: 50},
			maxQueue: 10,
		},
		{
			name:     "uninspectable queue counts as empty",
			infoErr:  errors.New("queue not found"),
			maxQueue: 10,
		},
		{
			name:     "check disabled",
			info:     &asynq.QueueInfo{Pending: 100},
			maxQueue: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.MaxProcessQueueSize = tt.maxQueue

			m := newManager(t, cfg)
			m.SetQueueInfo(tt.info, tt.infoErr)

			queued, err := m.Enqueue(context.Background(), txHash)
			if tt.expectErr != nil {
				require.ErrorIs(t, err, tt.expectErr)
				assert.False(t, queued)

				return
			}

			require.NoError(t, err)
			assert.True(t, queued)
		})
	}
}

func TestManager_ReconstructMissingTrace(t *testing.T) {
	m := newManager(t, testConfig(t))

	_, err := m.Reconstruct(context.Background(), txHash)
	require.ErrorIs(t, err, storage.ErrTraceNotFound)
}
