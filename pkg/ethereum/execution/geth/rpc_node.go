package geth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/0xsequence/ethkit/ethrpc"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution/geth/services"
)

// Compile-time check that RPCNode implements execution.Node interface.
var _ execution.Node = (*RPCNode)(nil)

// ErrNodeNotStarted is returned by RPC calls made before Start.
var ErrNodeNotStarted = errors.New("execution node not started")

// headerTransport adds custom headers to requests and respects context cancellation.
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for key, value := range t.headers {
		req.Header.Set(key, value)
	}

	if req.Context().Err() != nil {
		return nil, req.Context().Err()
	}

	return t.base.RoundTrip(req)
}

// RPCNode implements execution.Node over JSON-RPC.
type RPCNode struct {
	config         *execution.Config
	metadataConfig services.MetadataConfig
	log            logrus.FieldLogger
	rpc            *ethrpc.Provider
	metadata       *services.MetadataService

	onReadyCallbacks []func(ctx context.Context) error

	// Goroutine management
	mu     sync.RWMutex
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewRPCNode creates a new RPC-based execution node.
func NewRPCNode(log logrus.FieldLogger, conf *execution.Config) *RPCNode {
	return &RPCNode{
		config:         conf,
		metadataConfig: services.DefaultMetadataConfig(),
		log:            log.WithFields(logrus.Fields{"type": "execution", "source": conf.Name}),
	}
}

// WithMetadataConfig overrides the metadata refresh intervals. It must be
// called before Start.
func (n *RPCNode) WithMetadataConfig(config services.MetadataConfig) *RPCNode {
	n.metadataConfig = config

	return n
}

func (n *RPCNode) OnReady(_ context.Context, callback func(ctx context.Context) error) {
	n.onReadyCallbacks = append(n.onReadyCallbacks, callback)
}

func (n *RPCNode) Start(ctx context.Context) error {
	n.log.WithField("node_address", n.config.NodeAddress).Info("Starting execution node")

	nodeCtx, cancel := context.WithCancel(ctx)

	// Create HTTP client without fixed timeout - let context handle it
	httpClient := http.Client{
		Transport: &headerTransport{
			headers: n.config.NodeHeaders,
			base: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}

	provider, err := ethrpc.NewProvider(n.config.NodeAddress, ethrpc.WithHTTPClient(&httpClient))
	if err != nil {
		cancel()

		n.log.WithError(err).Error("Failed to create RPC provider")

		return fmt.Errorf("failed to create RPC provider for %s: %w", n.config.NodeAddress, err)
	}

	metadata := services.NewMetadataService(n.log, provider, n.metadataConfig)

	metadata.OnReady(nodeCtx, func(readyCtx context.Context) error {
		n.log.WithFields(logrus.Fields{
			"client_type": metadata.Client(),
			"chain_id":    metadata.ChainID(),
		}).Info("Execution node is ready")

		for _, callback := range n.onReadyCallbacks {
			callbackCtx, callbackCancel := context.WithTimeout(readyCtx, 10*time.Second)

			if err := callback(callbackCtx); err != nil {
				n.log.WithError(err).Error("Failed to run on ready callback")
			}

			callbackCancel()
		}

		return nil
	})

	n.mu.Lock()
	n.cancel = cancel
	n.rpc = provider
	n.metadata = metadata
	n.mu.Unlock()

	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		if err := metadata.Start(nodeCtx); err != nil && nodeCtx.Err() == nil {
			n.log.WithError(err).Error("Failed to start metadata service")
		}
	}()

	return nil
}

func (n *RPCNode) Stop(ctx context.Context) error {
	n.log.Info("Stopping execution node")

	n.mu.Lock()
	if n.cancel != nil {
		n.cancel()
	}

	metadata := n.metadata
	n.mu.Unlock()

	done := make(chan struct{})

	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.log.Info("All node goroutines stopped gracefully")
	case <-ctx.Done():
		n.log.Warn("Timeout waiting for node goroutines to stop")
	}

	if metadata != nil {
		if err := metadata.Stop(ctx); err != nil {
			n.log.WithError(err).Error("Failed to stop metadata service")
		}
	}

	return nil
}

// Metadata returns the metadata service, or nil before Start.
func (n *RPCNode) Metadata() *services.MetadataService {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.metadata
}

// Name returns the configured name for this node.
func (n *RPCNode) Name() string {
	return n.config.Name
}

// ChainID returns the chain ID from the metadata service.
func (n *RPCNode) ChainID() int32 {
	if meta := n.Metadata(); meta != nil {
		return meta.ChainID()
	}

	return 0
}

// ClientType returns the client version string from the metadata service.
func (n *RPCNode) ClientType() string {
	if meta := n.Metadata(); meta != nil {
		return meta.ClientVersion()
	}

	return ""
}

// IsSynced returns true if the node is synced.
func (n *RPCNode) IsSynced() bool {
	if meta := n.Metadata(); meta != nil {
		return meta.IsSynced()
	}

	return false
}

// DebugTraceTransactionRaw returns the raw structlog trace of the transaction.
func (n *RPCNode) DebugTraceTransactionRaw(
	ctx context.Context,
	hash string,
	opts execution.TraceOptions,
) (json.RawMessage, error) {
	return n.debugTraceTransactionRaw(ctx, hash, opts)
}

// TransactionReceiptRaw returns the raw receipt of the transaction.
func (n *RPCNode) TransactionReceiptRaw(ctx context.Context, hash string) (json.RawMessage, error) {
	return n.transactionReceiptRaw(ctx, hash)
}
