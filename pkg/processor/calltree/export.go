package calltree

import (
	"context"
	"fmt"
	"time"
)

// exportRow is one call frame row tagged with its transaction.
type exportRow struct {
	updated     time.Time
	blockNumber uint64
	txHash      string
	network     string
	frame       CallFrameRow
}

// export writes the flattened tree to ClickHouse unless rows for the
// transaction are already present. Rows are batched with those of other
// transactions and export returns once their batch is inserted.
func (p *Processor) export(ctx context.Context, result *Result) error {
	empty, err := p.clickhouse.IsStorageEmpty(ctx, p.config.Table, map[string]any{
		"transaction_hash":  result.TxHash,
		"meta_network_name": result.Network,
	})
	if err != nil {
		return fmt.Errorf("failed to check existing call frames: %w", err)
	}

	if !empty {
		p.log.WithField("tx_hash", result.TxHash).Debug("Call frames already exported")

		return nil
	}

	var blockNumber uint64
	if result.Receipt != nil && result.Receipt.BlockNumber != nil {
		blockNumber = result.Receipt.BlockNumber.Uint64()
	}

	frames := FlattenCallTree(result.Root)
	rows := make([]exportRow, len(frames))
	now := time.Now()

	for i := range frames {
		rows[i] = exportRow{
			updated:     now,
			blockNumber: blockNumber,
			txHash:      result.TxHash,
			network:     result.Network,
			frame:       frames[i],
		}
	}

	if err := p.rows.Submit(ctx, rows); err != nil {
		return fmt.Errorf("failed to insert call frames: %w", err)
	}

	return nil
}

// insertRows is the row buffer's flush function.
func (p *Processor) insertRows(ctx context.Context, rows []exportRow) error {
	cols := NewColumns()

	for i := range rows {
		r := &rows[i]
		cols.Append(r.updated, r.blockNumber, r.txHash, r.network, &r.frame)
	}

	return p.clickhouse.Insert(ctx, p.config.Table, cols.Input())
}
