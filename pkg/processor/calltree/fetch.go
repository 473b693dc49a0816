package calltree

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/execution-calltree/pkg/common"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

// Fetch acquires the trace and receipt of a transaction from a healthy node
// and persists them. Transient failures are retried with exponential backoff;
// an unknown transaction is not.
func (p *Processor) Fetch(ctx context.Context, hash string) (*storage.RawTrace, error) {
	if p.nodes == nil {
		return nil, ErrNoNodes
	}

	normalized, err := storage.NormalizeHash(hash)
	if err != nil {
		return nil, err
	}

	opts := p.traceOptions()

	var raw *storage.RawTrace

	attempt := 0

	operation := func() error {
		attempt++

		fetched, err := p.fetchOnce(ctx, normalized, opts)
		if err != nil {
			if errors.Is(err, execution.ErrTransactionNotFound) {
				return backoff.Permanent(err)
			}

			return err
		}

		raw = fetched

		return nil
	}

	notify := func(err error, delay time.Duration) {
		common.RetryCount.WithLabelValues("calltree_fetch", "transient").Inc()

		p.log.WithFields(logrus.Fields{
			"tx_hash": normalized,
			"attempt": attempt,
			"delay":   delay,
		}).WithError(err).Warn("Trace fetch failed, retrying")
	}

	if err := backoff.RetryNotify(operation, p.fetchBackOff(ctx), notify); err != nil {
		common.TracesFetched.WithLabelValues("unknown", "failed").Inc()

		return nil, fmt.Errorf("failed to fetch trace %s: %w", normalized, err)
	}

	if _, err := p.store.Save(ctx, raw); err != nil {
		return nil, fmt.Errorf("failed to persist trace %s: %w", normalized, err)
	}

	common.TracesFetched.WithLabelValues(p.networkName(raw.Metadata.ChainID), "success").Inc()

	p.log.WithFields(logrus.Fields{
		"tx_hash":  normalized,
		"node":     raw.Metadata.Node,
		"bytes":    len(raw.Trace),
		"attempts": attempt,
	}).Info("Fetched trace")

	return raw, nil
}

func (p *Processor) fetchBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.FetchBaseBackoff
	b.MaxInterval = p.config.FetchMaxBackoff
	b.MaxElapsedTime = 0

	return backoff.WithContext(backoff.WithMaxRetries(b, p.config.FetchMaxRetries), ctx)
}

func (p *Processor) fetchOnce(ctx context.Context, hash string, opts execution.TraceOptions) (*storage.RawTrace, error) {
	waitCtx, cancel := context.WithTimeout(ctx, p.config.NodeWaitTimeout)
	node, err := p.nodes.WaitForHealthyExecutionNode(waitCtx)

	cancel()

	if err != nil {
		return nil, err
	}

	common.TraceFetchAttempts.WithLabelValues(p.networkName(node.ChainID())).Inc()

	result, err := node.DebugTraceTransactionRaw(ctx, hash, opts)
	if err != nil {
		return nil, fmt.Errorf("debug_traceTransaction on %s: %w", node.Name(), err)
	}

	trace, err := execution.WrapResult(result)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap trace: %w", err)
	}

	receiptRequest := execution.ReceiptRequest(hash)

	raw := &storage.RawTrace{
		TxHash: hash,
		Trace:  trace,
		Metadata: storage.Metadata{
			Node:           node.Name(),
			ChainID:        node.ChainID(),
			ClientVersion:  node.ClientType(),
			FetchedAt:      time.Now().UTC(),
			TraceOptions:   opts,
			TraceRequest:   execution.DebugTraceRequest(hash, opts),
			ReceiptRequest: &receiptRequest,
		},
	}

	// The receipt only enriches the report, so losing it does not fail the fetch.
	receipt, err := node.TransactionReceiptRaw(ctx, hash)
	if err != nil {
		p.log.WithError(err).WithField("tx_hash", hash).Warn("Failed to fetch receipt")

		raw.Metadata.ReceiptRequest = nil

		return raw, nil
	}

	raw.Receipt, err = execution.WrapResult(receipt)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap receipt: %w", err)
	}

	return raw, nil
}
