package execution

import (
	"context"
	"encoding/json"
)

// Node defines the interface for execution data providers.
//
// All methods must be safe for concurrent use by multiple goroutines.
//
// Lifecycle:
//  1. Create the node with its constructor
//  2. Register OnReady callbacks before calling Start
//  3. Call Start to begin initialization
//  4. Node signals readiness by executing OnReady callbacks
//  5. Call Stop for graceful shutdown
type Node interface {
	// Start initializes the node and begins any background operations.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the node and releases resources.
	Stop(ctx context.Context) error

	// OnReady registers a callback to be invoked when the node becomes ready.
	OnReady(ctx context.Context, callback func(ctx context.Context) error)

	// DebugTraceTransactionRaw returns the raw `result` member of
	// debug_traceTransaction for the transaction.
	DebugTraceTransactionRaw(ctx context.Context, hash string, opts TraceOptions) (json.RawMessage, error)

	// TransactionReceiptRaw returns the raw `result` member of
	// eth_getTransactionReceipt. A pending or unknown transaction yields
	// ErrTransactionNotFound.
	TransactionReceiptRaw(ctx context.Context, hash string) (json.RawMessage, error)

	// ChainID returns the chain ID reported by the execution client.
	ChainID() int32

	// ClientType returns the client type/version string (e.g., "Geth/v1.14.0").
	ClientType() string

	// IsSynced returns true if the execution client is fully synced.
	IsSynced() bool

	// Name returns the configured name for this node.
	Name() string
}
