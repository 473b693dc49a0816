package ethereum

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution/geth"
)

// Pool tracks a set of execution nodes and hands out the ones that signalled
// readiness.
type Pool struct {
	log     logrus.FieldLogger
	nodes   []execution.Node
	metrics *Metrics
	config  *Config

	mu      sync.RWMutex
	healthy map[execution.Node]bool

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewPool creates a pool of JSON-RPC nodes from config.
func NewPool(log logrus.FieldLogger, namespace string, config *Config) *Pool {
	nodes := make([]execution.Node, 0, len(config.Execution))

	for _, execCfg := range config.Execution {
		nodes = append(nodes, geth.NewRPCNode(log, execCfg))
	}

	return NewPoolWithNodes(log, namespace, nodes, config)
}

// NewPoolWithNodes creates a pool around already constructed nodes. A nil
// config is treated as empty.
func NewPoolWithNodes(log logrus.FieldLogger, namespace string, nodes []execution.Node, config *Config) *Pool {
	if config == nil {
		config = &Config{}
	}

	return &Pool{
		log:     log.WithField("component", "ethereum_pool"),
		nodes:   nodes,
		healthy: make(map[execution.Node]bool, len(nodes)),
		metrics: GetMetricsInstance(fmt.Sprintf("%s_ethereum", namespace)),
		config:  config,
	}
}

func (p *Pool) HasExecutionNodes() bool {
	return len(p.nodes) > 0
}

func (p *Pool) HasHealthyExecutionNodes() bool {
	return len(p.GetHealthyExecutionNodes()) > 0
}

func (p *Pool) GetHealthyExecutionNodes() []execution.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()

	nodes := make([]execution.Node, 0, len(p.healthy))

	// Iterate the configured slice so the result keeps config order.
	for _, node := range p.nodes {
		if p.healthy[node] {
			nodes = append(nodes, node)
		}
	}

	return nodes
}

// GetHealthyExecutionNode returns a random healthy node, or nil if there is none.
func (p *Pool) GetHealthyExecutionNode() execution.Node {
	nodes := p.GetHealthyExecutionNodes()
	if len(nodes) == 0 {
		return nil
	}

	//nolint:gosec // load spreading only
	return nodes[rand.IntN(len(nodes))]
}

// WaitForHealthyExecutionNode blocks until a node is healthy or ctx is done.
func (p *Pool) WaitForHealthyExecutionNode(ctx context.Context) (execution.Node, error) {
	if len(p.nodes) == 0 {
		return nil, ErrNoExecutionNodes
	}

	start := time.Now()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	lastLog := start

	for {
		if node := p.GetHealthyExecutionNode(); node != nil {
			p.log.WithFields(logrus.Fields{
				"node":     node.Name(),
				"duration": time.Since(start).Round(time.Millisecond),
			}).Debug("Found healthy execution node")

			p.metrics.ObserveWait("found", time.Since(start))

			return node, nil
		}

		if time.Since(lastLog) >= 10*time.Second {
			lastLog = time.Now()

			p.log.WithFields(logrus.Fields{
				"total_nodes": len(p.nodes),
				"waiting_for": time.Since(start).Round(time.Second),
			}).Info("Waiting for healthy execution node...")
		}

		select {
		case <-ctx.Done():
			p.metrics.ObserveWait("timeout", time.Since(start))

			return nil, fmt.Errorf("%w: %w", ErrNoHealthyNode, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Start registers readiness callbacks and starts every node in the background.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	g := new(errgroup.Group)

	p.UpdateNodeMetrics()

	for _, node := range p.nodes {
		node.OnReady(ctx, func(context.Context) error {
			p.mu.Lock()
			p.healthy[node] = true
			p.mu.Unlock()

			p.log.WithFields(logrus.Fields{
				"node":     node.Name(),
				"chain_id": node.ChainID(),
				"client":   node.ClientType(),
			}).Info("Execution node ready")

			p.UpdateNodeMetrics()

			return nil
		})

		g.Go(func() error {
			if err := node.Start(ctx); err != nil {
				return fmt.Errorf("node %s: %w", node.Name(), err)
			}

			return nil
		})
	}

	p.wg.Add(2)

	go func() {
		defer p.wg.Done()

		if err := g.Wait(); err != nil && ctx.Err() == nil {
			p.log.WithError(err).Error("Execution node failed to start")
		}
	}()

	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.UpdateNodeMetrics()
			}
		}
	}()
}

// UpdateNodeMetrics publishes per node readiness and the healthy/unhealthy
// totals. A node counts as healthy once it is ready and synced.
func (p *Pool) UpdateNodeMetrics() {
	p.mu.RLock()

	healthy := 0

	for _, node := range p.nodes {
		ready := p.healthy[node] && node.IsSynced()
		if ready {
			healthy++
		}

		p.metrics.SetNodeReady(node.Name(), ready)
	}

	total := len(p.nodes)
	p.mu.RUnlock()

	p.metrics.SetNodesTotal(float64(healthy), []string{"execution", "healthy"})
	p.metrics.SetNodesTotal(float64(total-healthy), []string{"execution", "unhealthy"})
}

// Stop cancels background work and stops all nodes.
func (p *Pool) Stop(ctx context.Context) error {
	p.log.Info("Stopping pool")

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})

	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.log.Warn("Timeout waiting for pool goroutines to stop")
	}

	for _, node := range p.nodes {
		if err := node.Stop(ctx); err != nil {
			p.log.WithError(err).WithField("node", node.Name()).Error("Failed to stop execution node")
		}
	}

	return nil
}

// GetNetworkByChainID resolves a chain ID to a network, honouring the
// configured override name.
func (p *Pool) GetNetworkByChainID(chainID int32) (*Network, error) {
	if p.config.OverrideNetworkName != nil && *p.config.OverrideNetworkName != "" {
		return &Network{
			ID:   chainID,
			Name: *p.config.OverrideNetworkName,
		}, nil
	}

	return GetNetworkByChainID(chainID)
}
