package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/clickhouse"
	"github.com/ethpandaops/execution-calltree/pkg/common"
	"github.com/ethpandaops/execution-calltree/pkg/leaderelection"
	"github.com/ethpandaops/execution-calltree/pkg/processor/calltree"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

// ErrQueueFull is returned by Enqueue while the process queue is at capacity.
var ErrQueueFull = errors.New("process queue is full")

type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	Close() error
}

// Dependencies are the shared services the manager wires into the call tree
// processor. Cache and ClickHouse are optional.
type Dependencies struct {
	Nodes       calltree.NodeSource
	Store       *storage.Store
	Cache       calltree.TreeCache
	ClickHouse  clickhouse.ClientInterface
	Redis       *r.Client
	AsynqOpt    asynq.RedisClientOpt
	RedisPrefix string
}

// Manager runs the call tree processor behind an asynq task queue: it owns
// the queue client and worker, and the leader publishes queue metrics.
type Manager struct {
	log    logrus.FieldLogger
	config *Config

	calltree *calltree.Processor

	redisClient *r.Client
	redisPrefix string
	asynqClient *asynq.Client
	asynqServer *asynq.Server
	inspector   queueInspector

	leaderElector leaderelection.Elector

	monitorMu     sync.Mutex
	monitorCancel context.CancelFunc

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewManager(log logrus.FieldLogger, config *Config, deps *Dependencies) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid processor config: %w", err)
	}

	log = log.WithField("component", "processor")

	asynqClient := asynq.NewClient(deps.AsynqOpt)

	p, err := calltree.New(&calltree.Dependencies{
		Log:         log,
		Nodes:       deps.Nodes,
		Store:       deps.Store,
		Cache:       deps.Cache,
		ClickHouse:  deps.ClickHouse,
		AsynqClient: asynqClient,
		RedisPrefix: deps.RedisPrefix,
	}, &config.Calltree)
	if err != nil {
		_ = asynqClient.Close()

		return nil, fmt.Errorf("failed to create calltree processor: %w", err)
	}

	m := &Manager{
		log:         log,
		config:      config,
		calltree:    p,
		redisClient: deps.Redis,
		redisPrefix: deps.RedisPrefix,
		asynqClient: asynqClient,
		inspector:   asynq.NewInspector(deps.AsynqOpt),
		stopChan:    make(chan struct{}),
	}

	if config.Worker.Enabled {
		m.asynqServer = asynq.NewServer(deps.AsynqOpt, asynq.Config{
			Concurrency: config.Worker.Concurrency,
			Queues:      p.Queues(),
			LogLevel:    asynq.InfoLevel,
			Logger:      log,
		})
	}

	return m, nil
}

// Calltree returns the managed processor.
func (m *Manager) Calltree() *calltree.Processor {
	return m.calltree
}

// GetQueueName returns the process queue name.
func (m *Manager) GetQueueName() string {
	return m.calltree.Queue()
}

// Start runs until Stop is called or ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	m.log.Info("Starting processor manager")

	if err := m.calltree.Start(ctx); err != nil {
		return fmt.Errorf("failed to start calltree processor: %w", err)
	}

	if m.config.LeaderElection.Enabled && m.redisClient != nil {
		key := "leader:calltree"
		if m.redisPrefix != "" {
			key = fmt.Sprintf("%s:%s", m.redisPrefix, key)
		}

		elector, err := leaderelection.NewRedisElector(m.redisClient, m.log, key, &m.config.LeaderElection)
		if err != nil {
			return fmt.Errorf("failed to create leader elector: %w", err)
		}

		elector.OnLeadershipChange(func(ctx context.Context, isLeader bool) {
			if isLeader {
				m.startQueueMonitoring(ctx)
			} else {
				m.stopQueueMonitoring()
			}
		})

		m.leaderElector = elector

		if err := elector.Start(ctx); err != nil {
			return fmt.Errorf("failed to start leader election: %w", err)
		}
	} else {
		m.startQueueMonitoring(ctx)
	}

	if m.asynqServer != nil {
		if err := m.asynqServer.Start(m.setupWorkerHandlers()); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}

		m.log.WithField("queue", m.GetQueueName()).Info("Worker started")
	}

	select {
	case <-ctx.Done():
	case <-m.stopChan:
	}

	return nil
}

// Stop drains the worker, gives up leadership and stops the processor.
// It is safe to call more than once.
func (m *Manager) Stop(ctx context.Context) error {
	var err error

	m.stopOnce.Do(func() {
		m.log.Info("Stopping processor manager")

		close(m.stopChan)

		if m.asynqServer != nil {
			m.asynqServer.Shutdown()
		}

		if m.leaderElector != nil {
			if stopErr := m.leaderElector.Stop(ctx); stopErr != nil {
				m.log.WithError(stopErr).Error("Failed to stop leader election")
			}
		}

		m.stopQueueMonitoring()
		m.wg.Wait()

		err = m.calltree.Stop(ctx)

		if closeErr := m.inspector.Close(); closeErr != nil {
			m.log.WithError(closeErr).Warn("Failed to close asynq inspector")
		}

		if closeErr := m.asynqClient.Close(); closeErr != nil {
			m.log.WithError(closeErr).Warn("Failed to close asynq client")
		}
	})

	return err
}

// Enqueue schedules a transaction unless the queue is at capacity. It
// reports false when the transaction is already queued. A queue that cannot
// be inspected, including one that does not exist yet, counts as empty.
func (m *Manager) Enqueue(ctx context.Context, hash string) (bool, error) {
	if m.config.MaxProcessQueueSize > 0 {
		backlog, err := m.backlog()
		if err != nil {
			m.log.WithError(err).Debug("Skipping queue capacity check")
		} else if backlog >= m.config.MaxProcessQueueSize {
			return false, fmt.Errorf("%w: %d tasks waiting", ErrQueueFull, backlog)
		}
	}

	return m.calltree.Enqueue(ctx, hash)
}

// Reconstruct returns the call tree of a transaction.
func (m *Manager) Reconstruct(ctx context.Context, hash string) (*calltree.Result, error) {
	return m.calltree.Reconstruct(ctx, hash)
}

// backlog is the number of unfinished tasks in the process queue.
func (m *Manager) backlog() (int, error) {
	info, err := m.inspector.GetQueueInfo(m.GetQueueName())
	if err != nil {
		return 0, fmt.Errorf("failed to inspect queue: %w", err)
	}

	return info.Pending + info.Active + info.Scheduled + info.Retry, nil
}

func (m *Manager) setupWorkerHandlers() *asynq.ServeMux {
	mux := asynq.NewServeMux()

	for taskType, handler := range m.calltree.GetHandlers() {
		mux.HandleFunc(taskType, handler)

		m.log.WithField("task_type", taskType).Info("Registered task handler")
	}

	return mux
}

func (m *Manager) startQueueMonitoring(ctx context.Context) {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()

	if m.monitorCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	m.monitorCancel = cancel

	m.wg.Add(1)

	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.config.QueueMonitorInterval)
		defer ticker.Stop()

		for {
			m.monitorQueues()

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	m.log.Debug("Started queue monitoring")
}

func (m *Manager) stopQueueMonitoring() {
	m.monitorMu.Lock()
	defer m.monitorMu.Unlock()

	if m.monitorCancel == nil {
		return
	}

	m.monitorCancel()
	m.monitorCancel = nil
}

func (m *Manager) monitorQueues() {
	queue := m.GetQueueName()

	info, err := m.inspector.GetQueueInfo(queue)
	if err != nil {
		// A queue only exists once something was enqueued to it.
		m.log.WithError(err).WithField("queue", queue).Debug("Failed to get queue info")

		return
	}

	states := map[string]int{
		"pending":   info.Pending,
		"active":    info.Active,
		"scheduled": info.Scheduled,
		"retry":     info.Retry,
		"archived":  info.Archived,
		"completed": info.Completed,
	}

	for state, n := range states {
		common.QueueTasks.WithLabelValues(queue, state).Set(float64(n))
	}

	if info.Archived > 0 {
		m.log.WithFields(logrus.Fields{
			"queue":    queue,
			"archived": info.Archived,
		}).Warn("Queue has archived tasks")
	}
}
