package calltree

import (
	"github.com/ethpandaops/execution-calltree/pkg/evm"
)

// CallFrameRow is one call frame flattened for columnar export.
type CallFrameRow struct {
	CallFrameID       uint32
	ParentCallFrameID *uint32 // nil for root frame
	Depth             uint32  // 0 for root frame
	CallType          string  // ROOT/CALL/DELEGATECALL/STATICCALL/CALLCODE/CREATE/CREATE2
	OpcodeCount       uint64
	Gas               uint64 // Self gas (excludes children)
	GasCumulative     uint64 // Self + all descendants
	GasLimit          uint64
	Success           bool
	Error             *string
	Reverted          bool
}

// FlattenCallTree numbers frames in pre-order starting with the root at 0
// and returns one row per frame in that order.
func FlattenCallTree(root *evm.CallFrame) []CallFrameRow {
	if root == nil {
		return nil
	}

	rows := make([]CallFrameRow, 0, root.FrameCount())

	// path[d] is the ID of the most recent frame seen at relative depth d,
	// which is the parent of the next frame at depth d+1.
	path := make([]uint32, 0, 8)

	root.Walk(func(frame *evm.CallFrame, depth int) bool {
		id := uint32(len(rows)) //nolint:gosec // frame count is bounded by the trace length

		path = append(path[:depth], id)

		row := CallFrameRow{
			CallFrameID:   id,
			Depth:         uint32(depth), //nolint:gosec // depth is bounded by the EVM call limit
			CallType:      frame.Kind.String(),
			OpcodeCount:   uint64(len(frame.Instructions)),
			GasCumulative: frame.GasUsed,
			GasLimit:      frame.GasLimit,
			Success:       frame.Success,
			Error:         frame.Error,
			Reverted:      frame.Error != nil && *frame.Error == evm.RevertedError,
		}

		if depth > 0 {
			parent := path[depth-1]
			row.ParentCallFrameID = &parent
		}

		// gas = gas_cumulative - sum(children.gas_cumulative)
		var childGas uint64
		for _, child := range frame.Children {
			childGas += child.GasUsed
		}

		if frame.GasUsed >= childGas {
			row.Gas = frame.GasUsed - childGas
		}

		rows = append(rows, row)

		return true
	})

	return rows
}
