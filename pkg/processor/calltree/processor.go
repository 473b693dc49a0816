package calltree

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/clickhouse"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-calltree/pkg/evm"
	"github.com/ethpandaops/execution-calltree/pkg/rowbuffer"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

// NodeSource hands out execution nodes. *ethereum.Pool implements it.
type NodeSource interface {
	WaitForHealthyExecutionNode(ctx context.Context) (execution.Node, error)
	GetNetworkByChainID(chainID int32) (*ethereum.Network, error)
}

// TreeCache stores reconstructed trees. *cache.TreeCache implements it.
type TreeCache interface {
	Get(ctx context.Context, hash string) (*evm.CallFrame, bool, error)
	Set(ctx context.Context, hash string, root *evm.CallFrame) error
}

// Dependencies contains the dependencies needed for the processor. Only Log
// and Store are required; a nil Nodes disables fetching, a nil Cache
// disables caching, a nil ClickHouse disables export and a nil AsynqClient
// disables Enqueue.
type Dependencies struct {
	Log         logrus.FieldLogger
	Nodes       NodeSource
	Store       *storage.Store
	Cache       TreeCache
	ClickHouse  clickhouse.ClientInterface
	AsynqClient *asynq.Client
	RedisPrefix string
}

// Processor acquires traces and turns them into call trees.
type Processor struct {
	log         logrus.FieldLogger
	nodes       NodeSource
	store       *storage.Store
	cache       TreeCache
	clickhouse  clickhouse.ClientInterface
	rows        *rowbuffer.Buffer[exportRow]
	asynqClient *asynq.Client
	config      *Config
	redisPrefix string
}

// New creates a new call tree processor.
func New(deps *Dependencies, config *Config) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid calltree config: %w", err)
	}

	if deps.Store == nil {
		return nil, fmt.Errorf("calltree processor requires a trace store")
	}

	p := &Processor{
		log:         deps.Log.WithField("processor", ProcessorName),
		nodes:       deps.Nodes,
		store:       deps.Store,
		cache:       deps.Cache,
		clickhouse:  deps.ClickHouse,
		asynqClient: deps.AsynqClient,
		config:      config,
		redisPrefix: deps.RedisPrefix,
	}

	if p.clickhouse != nil {
		bufferCfg := config.Export
		bufferCfg.Table = config.Table

		p.rows = rowbuffer.New(p.log, bufferCfg, p.insertRows)
	}

	return p, nil
}

// Start connects the export sink, if any, and makes sure its table exists.
func (p *Processor) Start(ctx context.Context) error {
	if p.clickhouse == nil {
		p.log.Info("Call tree processor ready")

		return nil
	}

	if err := p.clickhouse.Start(ctx); err != nil {
		return fmt.Errorf("failed to start ClickHouse client: %w", err)
	}

	if err := p.clickhouse.Execute(ctx, CreateTableQuery(p.config.Table)); err != nil {
		return fmt.Errorf("failed to create %s table: %w", p.config.Table, err)
	}

	if err := p.rows.Start(ctx); err != nil {
		return fmt.Errorf("failed to start row buffer: %w", err)
	}

	p.log.WithField("table", p.config.Table).Info("Call tree processor ready with ClickHouse export")

	return nil
}

// Stop flushes pending export rows and disconnects the export sink.
func (p *Processor) Stop(ctx context.Context) error {
	p.log.Info("Stopping call tree processor")

	if p.clickhouse == nil {
		return nil
	}

	if err := p.rows.Stop(ctx); err != nil {
		p.log.WithError(err).Error("Failed to flush call frames on shutdown")
	}

	return p.clickhouse.Stop()
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return ProcessorName
}

// Queue returns the prefixed process queue name.
func (p *Processor) Queue() string {
	return ProcessQueue(p.redisPrefix)
}

// Queues returns the queues and priorities served by this processor.
func (p *Processor) Queues() map[string]int {
	return map[string]int{p.Queue(): 10}
}

// GetHandlers returns the task handlers for this processor.
func (p *Processor) GetHandlers() map[string]asynq.HandlerFunc {
	return map[string]asynq.HandlerFunc{
		ProcessTaskType: p.HandleProcessTask,
	}
}

// Concurrency is the configured fan-out limit.
func (p *Processor) Concurrency() int {
	return p.config.Concurrency
}

func (p *Processor) traceOptions() execution.TraceOptions {
	if p.config.MemoryCapture {
		return execution.MemoryTraceOptions()
	}

	return execution.DefaultTraceOptions()
}

// networkName labels metrics and exported rows for a chain.
func (p *Processor) networkName(chainID int32) string {
	if chainID == 0 {
		return "unknown"
	}

	lookup := ethereum.GetNetworkByChainID
	if p.nodes != nil {
		lookup = p.nodes.GetNetworkByChainID
	}

	network, err := lookup(chainID)
	if err != nil {
		return fmt.Sprintf("chain_%d", chainID)
	}

	return network.Name
}
