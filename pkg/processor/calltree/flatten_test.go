package calltree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/execution-calltree/pkg/evm"
	"github.com/ethpandaops/execution-calltree/pkg/processor/calltree"
)

func ins(op evm.OpCode, depth, gas, cost uint64) evm.Instruction {
	return evm.Instruction{Op: op, Depth: depth, Gas: gas, GasCost: &cost, Stack: []evm.Word{}}
}

// nestedTree is root -> CALL -> STATICCALL, then root -> CREATE which reverts.
func nestedTree(t *testing.T) *evm.CallFrame {
	t.Helper()

	root, err := evm.BuildCallTree([]evm.Instruction{
		ins(evm.CALL, 1, 1000, 100),
		ins(evm.PUSH1, 2, 800, 3),
		ins(evm.STATICCALL, 2, 797, 100),
		ins(evm.PUSH1, 3, 500, 3),
		ins(evm.STOP, 3, 497, 0),
		ins(evm.STOP, 2, 690, 0),
		ins(evm.CREATE, 1, 880, 200),
		ins(evm.PUSH1, 2, 600, 3),
		ins(evm.REVERT, 2, 597, 0),
		ins(evm.STOP, 1, 700, 0),
	})
	require.NoError(t, err)

	return root
}

func TestFlattenCallTree(t *testing.T) {
	rows := calltree.FlattenCallTree(nestedTree(t))
	require.Len(t, rows, 4)

	tests := []struct {
		id            uint32
		parent        *uint32
		depth         uint32
		callType      string
		opcodes       uint64
		gas           uint64
		gasCumulative uint64
		success       bool
		reverted      bool
	}{
		{id: 0, parent: nil, depth: 0, callType: "ROOT", opcodes: 3, gas: 187, gasCumulative: 300, success: true},
		{id: 1, parent: ptr(uint32(0)), depth: 1, callType: "CALL", opcodes: 3, gas: 107, gasCumulative: 110, success: true},
		{id: 2, parent: ptr(uint32(1)), depth: 2, callType: "STATICCALL", opcodes: 2, gas: 3, gasCumulative: 3, success: true},
		{id: 3, parent: ptr(uint32(0)), depth: 1, callType: "CREATE", opcodes: 2, gas: 3, gasCumulative: 3, success: false, reverted: true},
	}

	for i, tt := range tests {
		row := rows[i]

		assert.Equal(t, tt.id, row.CallFrameID, "frame %d id", i)
		assert.Equal(t, tt.parent, row.ParentCallFrameID, "frame %d parent", i)
		assert.Equal(t, tt.depth, row.Depth, "frame %d depth", i)
		assert.Equal(t, tt.callType, row.CallType, "frame %d call type", i)
		assert.Equal(t, tt.opcodes, row.OpcodeCount, "frame %d opcode count", i)
		assert.Equal(t, tt.gas, row.Gas, "frame %d self gas", i)
		assert.Equal(t, tt.gasCumulative, row.GasCumulative, "frame %d cumulative gas", i)
		assert.Equal(t, tt.success, row.Success, "frame %d success", i)
		assert.Equal(t, tt.reverted, row.Reverted, "frame %d reverted", i)
	}

	require.NotNil(t, rows[3].Error)
	assert.Equal(t, evm.RevertedError, *rows[3].Error)
	assert.Nil(t, rows[0].Error)
	assert.Equal(t, uint64(1000), rows[0].GasLimit)
	assert.Equal(t, uint64(800), rows[1].GasLimit)
}

func TestFlattenCallTree_Nil(t *testing.T) {
	assert.Nil(t, calltree.FlattenCallTree(nil))
}

func TestFlattenCallTree_SelfGasNeverUnderflows(t *testing.T) {
	root := evm.NewCallFrame(evm.KindRoot, evm.ZeroAddress, evm.ZeroAddress, 100)
	root.GasUsed = 5

	child := evm.NewCallFrame(evm.KindCall, evm.ZeroAddress, evm.ZeroAddress, 50)
	child.GasUsed = 10
	root.Children = append(root.Children, child)

	rows := calltree.FlattenCallTree(root)
	require.Len(t, rows, 2)
	assert.Equal(t, uint64(0), rows[0].Gas)
	assert.Equal(t, uint64(10), rows[1].Gas)
}

func TestColumns(t *testing.T) {
	rows := calltree.FlattenCallTree(nestedTree(t))
	cols := calltree.NewColumns()

	for i := range rows {
		cols.Append(testTime, 19_000_000, "0xabc", "mainnet", &rows[i])
	}

	assert.Equal(t, len(rows), cols.Rows())

	input := cols.Input()
	require.Len(t, input, 15)

	for _, col := range input {
		assert.Equal(t, len(rows), col.Data.Rows(), "column %s", col.Name)
	}

	assert.Contains(t, input.Into("call_frame"), "INSERT INTO")
	assert.Contains(t, calltree.CreateTableQuery("call_frame"), "CREATE TABLE IF NOT EXISTS call_frame")

	cols.Reset()
	assert.Equal(t, 0, cols.Rows())
}

func ptr[T any](v T) *T {
	return &v
}
