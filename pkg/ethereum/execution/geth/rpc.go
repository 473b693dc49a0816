package geth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/0xsequence/ethkit/ethrpc"
	"github.com/0xsequence/ethkit/go-ethereum/common"

	pcommon "github.com/ethpandaops/execution-calltree/pkg/common"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
)

const (
	statusError   = "error"
	statusSuccess = "success"
)

func (n *RPCNode) provider() (*ethrpc.Provider, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if n.rpc == nil {
		return nil, ErrNodeNotStarted
	}

	return n.rpc, nil
}

func (n *RPCNode) recordMetrics(method string, start time.Time, err error) {
	status := statusSuccess
	if err != nil {
		status = statusError
	}

	network := fmt.Sprintf("%d", n.ChainID())

	pcommon.RPCCallDuration.WithLabelValues(network, n.config.Name, method, status).Observe(time.Since(start).Seconds())
	pcommon.RPCCallsTotal.WithLabelValues(network, n.config.Name, method, status).Inc()
}

// callRaw performs a single call and returns its result untouched.
func (n *RPCNode) callRaw(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	provider, err := n.provider()
	if err != nil {
		return nil, err
	}

	var rsp json.RawMessage

	call := ethrpc.NewCallBuilder[json.RawMessage](method, nil, params...)

	start := time.Now()
	_, err = provider.Do(ctx, call.Into(&rsp))

	n.recordMetrics(method, start, err)

	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	return rsp, nil
}

func isNullResult(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)

	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (n *RPCNode) debugTraceTransactionRaw(
	ctx context.Context,
	hash string,
	opts execution.TraceOptions,
) (json.RawMessage, error) {
	// Add a timeout if the context doesn't already have one
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && n.config.TraceTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, n.config.TraceTimeout)

		defer cancel()
	}

	rsp, err := n.callRaw(ctx, execution.MethodDebugTraceTransaction, common.HexToHash(hash), opts.Params())
	if err != nil {
		return nil, err
	}

	if isNullResult(rsp) {
		return nil, fmt.Errorf("%w: %s", execution.ErrTransactionNotFound, hash)
	}

	return rsp, nil
}

func (n *RPCNode) transactionReceiptRaw(ctx context.Context, hash string) (json.RawMessage, error) {
	rsp, err := n.callRaw(ctx, execution.MethodTransactionReceipt, common.HexToHash(hash))
	if err != nil {
		return nil, err
	}

	if isNullResult(rsp) {
		return nil, fmt.Errorf("%w: %s", execution.ErrTransactionNotFound, hash)
	}

	return rsp, nil
}
