package calltree

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xsequence/ethkit/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/execution-calltree/pkg/common"
	"github.com/ethpandaops/execution-calltree/pkg/ethereum/execution"
	"github.com/ethpandaops/execution-calltree/pkg/evm"
	"github.com/ethpandaops/execution-calltree/pkg/storage"
)

// Stats summarises a reconstructed tree.
type Stats struct {
	Frames            int    `json:"frames"`
	Instructions      int    `json:"instructions"`
	MaxDepth          int    `json:"maxDepth"`
	GasUsed           uint64 `json:"gasUsed"`
	SanitizedGasCosts int    `json:"sanitizedGasCosts"`
	// Failed is derived from the root frame so cached and fresh results agree.
	Failed bool `json:"failed"`
}

// Result is a reconstructed transaction. Receipt is nil when it was not
// acquired or the tree came from the cache.
type Result struct {
	TxHash  string             `json:"txHash"`
	Network string             `json:"network,omitempty"`
	Cached  bool               `json:"cached"`
	Receipt *types.Receipt     `json:"receipt,omitempty"`
	Stats   Stats              `json:"stats"`
	Root    *evm.CallFrame     `json:"root"`
}

func statsFor(root *evm.CallFrame) Stats {
	return Stats{
		Frames:       root.FrameCount(),
		Instructions: root.InstructionCount(),
		MaxDepth:     root.MaxDepth(),
		GasUsed:      root.GasUsed,
		Failed:       !root.Success,
	}
}

// ReconstructDocument validates a persisted debug_traceTransaction response
// and builds its call tree.
func ReconstructDocument(data []byte) (*evm.CallFrame, Stats, error) {
	if err := execution.ValidateDocument(data); err != nil {
		return nil, Stats{}, fmt.Errorf("invalid trace document: %w", err)
	}

	trace, err := execution.ParseTraceEnvelope(data)
	if err != nil {
		return nil, Stats{}, fmt.Errorf("failed to parse trace: %w", err)
	}

	sanitized := execution.SanitizeStructLogs(trace.StructLogs)

	instructions, err := evm.DecodeInstructions(trace.StructLogs)
	if err != nil {
		return nil, Stats{}, err
	}

	root, err := evm.BuildCallTree(instructions)
	if err != nil {
		return nil, Stats{}, err
	}

	stats := statsFor(root)
	stats.SanitizedGasCosts = sanitized

	return root, stats, nil
}

// ErrorType classifies a reconstruction failure for metrics.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, evm.ErrEmptyTrace):
		return "empty_trace"
	case errors.Is(err, evm.ErrDecode):
		return "decode"
	case errors.Is(err, evm.ErrStructuralCorruption):
		return "structural_corruption"
	case errors.Is(err, execution.ErrInvalidEnvelope),
		errors.Is(err, execution.ErrRPCError),
		errors.Is(err, execution.ErrMissingResult),
		errors.Is(err, execution.ErrMalformedJSON),
		errors.Is(err, execution.ErrTrailingData):
		return "validation"
	case errors.Is(err, storage.ErrInvalidHash):
		return "invalid_hash"
	case errors.Is(err, storage.ErrTraceNotFound),
		errors.Is(err, execution.ErrTransactionNotFound):
		return "not_found"
	default:
		return "other"
	}
}

// IsPermanent reports whether retrying err cannot succeed.
func IsPermanent(err error) bool {
	return ErrorType(err) != "other"
}

// Reconstruct returns the call tree of a transaction. A cached tree is
// returned as is; otherwise the persisted trace is used, fetching it first
// when it is missing and a node source is configured.
func (p *Processor) Reconstruct(ctx context.Context, hash string) (*Result, error) {
	normalized, err := storage.NormalizeHash(hash)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		root, ok, err := p.cache.Get(ctx, normalized)
		if err != nil {
			p.log.WithError(err).WithField("tx_hash", normalized).Warn("Call tree cache lookup failed")
		} else if ok {
			return &Result{
				TxHash: normalized,
				Cached: true,
				Stats:  statsFor(root),
				Root:   root,
			}, nil
		}
	}

	raw, err := p.store.Load(normalized)
	if errors.Is(err, storage.ErrTraceNotFound) && p.nodes != nil {
		raw, err = p.Fetch(ctx, normalized)
	}

	if err != nil {
		return nil, err
	}

	result, err := p.build(raw)
	if err != nil {
		return nil, err
	}

	// Export before caching so a failed export is retried in full.
	if p.clickhouse != nil {
		if err := p.export(ctx, result); err != nil {
			return nil, err
		}
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, normalized, result.Root); err != nil {
			p.log.WithError(err).WithField("tx_hash", normalized).Warn("Failed to cache call tree")
		}
	}

	return result, nil
}

func (p *Processor) build(raw *storage.RawTrace) (*Result, error) {
	network := p.networkName(raw.Metadata.ChainID)
	start := time.Now()

	root, stats, err := ReconstructDocument(raw.Trace)
	if err != nil {
		common.ReconstructionErrors.WithLabelValues(network, ErrorType(err)).Inc()
		common.TreesReconstructed.WithLabelValues(network, "failed").Inc()

		return nil, fmt.Errorf("failed to reconstruct %s: %w", raw.TxHash, err)
	}

	common.ReconstructionDuration.WithLabelValues(network).Observe(time.Since(start).Seconds())
	common.TreeFrames.WithLabelValues(network).Observe(float64(stats.Frames))
	common.TreeInstructions.WithLabelValues(network).Observe(float64(stats.Instructions))
	common.GasCostsSanitized.WithLabelValues(network).Add(float64(stats.SanitizedGasCosts))
	common.TreesReconstructed.WithLabelValues(network, "success").Inc()

	result := &Result{
		TxHash:  raw.TxHash,
		Network: network,
		Stats:   stats,
		Root:    root,
	}

	if raw.Receipt != nil {
		receipt, err := execution.ParseReceiptEnvelope(raw.Receipt)
		if err != nil {
			p.log.WithError(err).WithField("tx_hash", raw.TxHash).Warn("Ignoring unreadable receipt")
		} else {
			result.Receipt = receipt
		}
	}

	p.log.WithFields(logrus.Fields{
		"tx_hash":      raw.TxHash,
		"frames":       stats.Frames,
		"instructions": stats.Instructions,
		"max_depth":    stats.MaxDepth,
		"duration":     time.Since(start),
	}).Debug("Reconstructed call tree")

	return result, nil
}

// ProcessTransactions reconstructs hashes concurrently, at most Concurrency
// at a time. Results are in input order; the first failure cancels the rest.
func (p *Processor) ProcessTransactions(ctx context.Context, hashes []string) ([]*Result, error) {
	results := make([]*Result, len(hashes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)

	for i, hash := range hashes {
		g.Go(func() error {
			result, err := p.Reconstruct(gctx, hash)
			if err != nil {
				return fmt.Errorf("transaction %s: %w", hash, err)
			}

			results[i] = result

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
