package ethereum

import "errors"

// Sentinel errors for Ethereum client operations.
var (
	// ErrNoExecutionNodes indicates the pool was built without any node.
	ErrNoExecutionNodes = errors.New("no execution nodes configured")

	// ErrNoHealthyNode indicates no healthy execution node is available.
	ErrNoHealthyNode = errors.New("no healthy execution node available")

	// ErrUnsupportedChainID indicates an unsupported chain ID was provided.
	ErrUnsupportedChainID = errors.New("unsupported chain ID")
)
